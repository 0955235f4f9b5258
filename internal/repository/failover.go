package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSessionRepository uses primary until it errors, then serves from
// fallback and retries primary once per recovery interval.
type FailoverSessionRepository struct {
	primary  domain.SessionRepository
	fallback domain.SessionRepository
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSessionRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// shouldTryPrimary is true while primary is healthy or a recovery probe is due.
func (r *FailoverSessionRepository) shouldTryPrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverSessionRepository) recovered() {
	if r.isDown.CompareAndSwap(true, false) {
		r.logger.Info().Msg("Primary session repository recovered")
	}
}

// call runs op on primary when possible; a miss (ErrNotFound) is an answer, not a failure.
func call[T any](r *FailoverSessionRepository, op func(domain.SessionRepository) (T, error)) (T, error) {
	if r.shouldTryPrimary() {
		v, err := op(r.primary)
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			r.recovered()
			return v, err
		}
		r.markDown(err)
	}
	return op(r.fallback)
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, id string) (*models.SessionState, error) {
	return call(r, func(repo domain.SessionRepository) (*models.SessionState, error) {
		return repo.GetSession(ctx, id)
	})
}

func (r *FailoverSessionRepository) SaveSession(ctx context.Context, state *models.SessionState) error {
	_, err := call(r, func(repo domain.SessionRepository) (struct{}, error) {
		return struct{}{}, repo.SaveSession(ctx, state)
	})
	return err
}

func (r *FailoverSessionRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := call(r, func(repo domain.SessionRepository) (struct{}, error) {
		return struct{}{}, repo.DeleteSession(ctx, id)
	})
	return err
}

type lockGrant struct {
	token string
	ok    bool
}

func (r *FailoverSessionRepository) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	g, err := call(r, func(repo domain.SessionRepository) (lockGrant, error) {
		token, ok, err := repo.AcquireLock(ctx, key, ttl)
		return lockGrant{token: token, ok: ok}, err
	})
	return g.token, g.ok, err
}

func (r *FailoverSessionRepository) ReleaseLock(ctx context.Context, key, token string) error {
	_, err := call(r, func(repo domain.SessionRepository) (struct{}, error) {
		return struct{}{}, repo.ReleaseLock(ctx, key, token)
	})
	return err
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return call(r, func(repo domain.SessionRepository) (bool, error) {
		return repo.CheckRateLimit(ctx, key, limit, window)
	})
}
