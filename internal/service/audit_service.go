package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/etution/etution-api/internal/models"
	"github.com/etution/etution-api/pkg/config"
	"github.com/etution/etution-api/pkg/jobs"
)

type auditLogStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditRecorder is the write interface services depend on.
type auditRecorder interface {
	Record(entry *models.AuditLog)
}

// AuditRecorder persists audit entries asynchronously through the jobs
// queue. Audit writes never block or fail a user-facing request.
type AuditRecorder struct {
	queue  *jobs.Queue
	store  auditLogStore
	logger *zap.Logger
}

// NewAuditRecorder constructs the recorder and its backing queue.
func NewAuditRecorder(store auditLogStore, logger *zap.Logger, cfg config.AuditConfig) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &AuditRecorder{store: store, logger: logger}
	r.queue = jobs.NewQueue("audit-log", r.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return r
}

// Start begins queue consumption.
func (r *AuditRecorder) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Stop drains the workers.
func (r *AuditRecorder) Stop() {
	r.queue.Stop()
}

// Record enqueues an audit entry. If the queue is unavailable the entry is
// written synchronously as a fallback.
func (r *AuditRecorder) Record(entry *models.AuditLog) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err := r.queue.Enqueue(jobs.Job{ID: entry.ID, Type: entry.Action, Payload: entry})
	if err == nil {
		return
	}

	if storeErr := r.store.CreateAuditLog(context.Background(), entry); storeErr != nil {
		r.logger.Warn("failed to record audit log", zap.Error(storeErr), zap.NamedError("enqueue_error", err))
	}
}

func (r *AuditRecorder) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		r.logger.Warn("unexpected audit payload type", zap.String("job_id", job.ID))
		return nil
	}
	return r.store.CreateAuditLog(ctx, entry)
}
