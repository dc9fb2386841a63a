package service

import (
	appErrors "github.com/etution/etution-api/pkg/errors"

	"github.com/etution/etution-api/internal/models"
)

// Entity names used in transition errors.
const (
	entityTuition     = "tuition_post"
	entityApplication = "application"
)

// tuitionTransitions is the legal status graph for tuition posts. Moderation
// is one-shot: approved and rejected are terminal.
var tuitionTransitions = map[models.TuitionStatus][]models.TuitionStatus{
	models.TuitionPending: {models.TuitionApproved, models.TuitionRejected},
}

// applicationTransitions is the legal status graph for applications.
// pending -> approved is listed here because the system performs it on
// payment confirmation; callers must never offer it to a user directly.
var applicationTransitions = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.ApplicationPending: {models.ApplicationApproved, models.ApplicationRejected},
}

func tuitionCanMove(from, to models.TuitionStatus) bool {
	for _, allowed := range tuitionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func applicationCanMove(from, to models.ApplicationStatus) bool {
	for _, allowed := range applicationTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// guardTuitionTransition validates a moderation move without mutating state.
func guardTuitionTransition(post *models.TuitionPost, to models.TuitionStatus) error {
	if !tuitionCanMove(post.Status, to) {
		return appErrors.IllegalTransition(entityTuition, post.ID, string(post.Status), string(to))
	}
	return nil
}

// guardApplicationTransition validates a status move without mutating state.
func guardApplicationTransition(app *models.Application, to models.ApplicationStatus) error {
	if !applicationCanMove(app.Status, to) {
		return appErrors.IllegalTransition(entityApplication, app.ID, string(app.Status), string(to))
	}
	return nil
}

// tuitionVisibleTo reports whether an actor may observe a post at all.
// Approved posts are public; everything else is owner- and admin-only.
func tuitionVisibleTo(post *models.TuitionPost, claims *models.JWTClaims, role models.Role) bool {
	if post.Status == models.TuitionApproved {
		return true
	}
	if role == models.RoleAdmin {
		return true
	}
	return claims != nil && claims.Email == post.OwnerEmail
}

// applicationVisibleTo reports whether an actor may observe an application.
// Denying visibility yields NOT_FOUND upstream so existence never leaks.
func applicationVisibleTo(app *models.Application, claims *models.JWTClaims, role models.Role) bool {
	if role == models.RoleAdmin {
		return true
	}
	if claims == nil {
		return false
	}
	return claims.Email == app.StudentEmail || claims.Email == app.TutorEmail
}
