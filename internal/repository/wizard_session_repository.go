package repository

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/edu-authoring-api/internal/models"
)

// WizardSessionRepository keeps authoring sessions in process memory. Sessions are
// short-lived drafts; only committed activities reach PostgreSQL.
type WizardSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.WizardSession
}

// NewWizardSessionRepository constructs an empty store.
func NewWizardSessionRepository() *WizardSessionRepository {
	return &WizardSessionRepository{sessions: make(map[string]*models.WizardSession)}
}

// Save stores a copy of the session.
func (r *WizardSessionRepository) Save(_ context.Context, session *models.WizardSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns a copy of the session or false when unknown.
func (r *WizardSessionRepository) Get(_ context.Context, id string) (*models.WizardSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return session.Clone(), true
}

// Delete removes the session.
func (r *WizardSessionRepository) Delete(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// DeleteIdleSince removes sessions not touched since cutoff and returns their ids.
func (r *WizardSessionRepository) DeleteIdleSince(_ context.Context, cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, session := range r.sessions {
		if session.UpdatedAt.Before(cutoff) {
			delete(r.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Count returns the number of live sessions.
func (r *WizardSessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
