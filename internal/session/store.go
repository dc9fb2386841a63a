// Package session holds the client-side session kit: the store for the
// current authenticated identity and the transport that attaches a fresh
// bearer credential to every outbound API call and recovers from credential
// expiry.
package session

import (
	"context"
	"sync"

	"github.com/etution/etution-api/internal/models"
)

// Identity is the authenticated user held by the store.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
	PhotoURL    string
}

// CredentialFunc mints a fresh bearer credential for the identity.
// Credentials expire, so the transport calls this per request and never
// caches the result beyond single-call use.
type CredentialFunc func(ctx context.Context) (string, error)

// Store holds the current session identity with an explicit lifecycle:
// Set on sign-in, Clear on sign-out or credential expiry. It is safe for
// concurrent use and Clear is idempotent.
type Store struct {
	mu         sync.RWMutex
	identity   *Identity
	credential CredentialFunc
	generation uint64
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{}
}

// Set installs the signed-in identity and its credential minter, starting a
// new session generation.
func (s *Store) Set(identity Identity, credential CredentialFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := identity
	s.identity = &id
	s.credential = credential
	s.generation++
}

// Identity returns the current identity, or nil when signed out.
func (s *Store) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Generation identifies the current session epoch. It changes on every Set
// and Clear, so cached per-session data can detect staleness.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Credential mints a fresh bearer credential for the current identity.
// It reports ok=false when no identity is present.
func (s *Store) Credential(ctx context.Context) (token string, ok bool, err error) {
	s.mu.RLock()
	credential := s.credential
	identity := s.identity
	s.mu.RUnlock()

	if identity == nil || credential == nil {
		return "", false, nil
	}
	token, err = credential(ctx)
	if err != nil {
		return "", true, err
	}
	return token, true, nil
}

// Clear terminates the session. Calling Clear on an already-empty store is
// a no-op; it reports whether this call performed the termination, so
// concurrent expiry handlers can elect a single winner.
func (s *Store) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return false
	}
	s.identity = nil
	s.credential = nil
	s.generation++
	return true
}

// ClaimsIdentity adapts JWT claims into a session identity.
func ClaimsIdentity(claims *models.JWTClaims) Identity {
	return Identity{
		ID:          claims.UserID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
	}
}
