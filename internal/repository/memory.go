package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/google/uuid"
)

type expiring[T any] struct {
	value     T
	expiresAt time.Time
}

func (e expiring[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemorySessionRepository keeps drafts in process. It backs single-instance
// deployments and stands in when Redis is down.
type MemorySessionRepository struct {
	mu         sync.Mutex
	sessions   map[string]expiring[models.SessionState]
	locks      map[string]expiring[string]
	rateLimits map[string]expiring[int]
	ttl        time.Duration
	now        func() time.Time
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions:   make(map[string]expiring[models.SessionState]),
		locks:      make(map[string]expiring[string]),
		rateLimits: make(map[string]expiring[int]),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemorySessionRepository) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return r.now().Add(ttl)
}

func (r *MemorySessionRepository) GetSession(_ context.Context, id string) (*models.SessionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok || e.expired(r.now()) {
		delete(r.sessions, id)
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	state := e.value
	state.Draft = state.Draft.Clone()
	return &state, nil
}

func (r *MemorySessionRepository) SaveSession(_ context.Context, state *models.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *state
	stored.Draft = state.Draft.Clone()
	r.sessions[state.ID] = expiring[models.SessionState]{value: stored, expiresAt: r.deadline(r.ttl)}
	return nil
}

func (r *MemorySessionRepository) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) AcquireLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.locks[key]; ok && !e.expired(r.now()) {
		return "", false, nil
	}
	token := uuid.NewString()
	r.locks[key] = expiring[string]{value: token, expiresAt: r.deadline(ttl)}
	return token, true, nil
}

func (r *MemorySessionRepository) ReleaseLock(_ context.Context, key, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.locks[key]; ok && e.value == token {
		delete(r.locks, key)
	}
	return nil
}

func (r *MemorySessionRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rateLimits[key]
	if !ok || e.expired(r.now()) {
		e = expiring[int]{expiresAt: r.deadline(window)}
	}
	e.value++
	r.rateLimits[key] = e
	return e.value <= limit, nil
}
