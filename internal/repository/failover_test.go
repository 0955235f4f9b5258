package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetSession(ctx context.Context, id string) (*models.SessionState, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionState), args.Error(1)
}

func (m *mockRepo) SaveSession(ctx context.Context, state *models.SessionState) error {
	return m.Called(ctx, state).Error(0)
}

func (m *mockRepo) DeleteSession(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockRepo) ReleaseLock(ctx context.Context, key, token string) error {
	return m.Called(ctx, key, token).Error(0)
}

func (m *mockRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverSessionRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverSessionRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		state := &models.SessionState{ID: "a"}
		primary.On("GetSession", ctx, "a").Return(state, nil).Once()

		got, err := repo.GetSession(ctx, "a")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		primary.AssertExpectations(t)
	})

	t.Run("NotFoundIsNotAFailure", func(t *testing.T) {
		primary.On("GetSession", ctx, "missing").Return(nil, domain.ErrNotFound).Once()

		_, err := repo.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		state := &models.SessionState{ID: "b"}
		primary.On("GetSession", ctx, "b").Return(nil, errors.New("fail")).Once()
		fallback.On("GetSession", ctx, "b").Return(state, nil).Once()

		got, err := repo.GetSession(ctx, "b")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("AlreadyDownSkipsPrimary", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now()
		state := &models.SessionState{ID: "c"}
		fallback.On("SaveSession", ctx, state).Return(nil).Once()

		assert.NoError(t, repo.SaveSession(ctx, state))
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "SaveSession", ctx, state)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("DeleteSession", ctx, "d").Return(nil).Once()

		assert.NoError(t, repo.DeleteSession(ctx, "d"))
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("AcquireLock", ctx, "e", time.Second).Return("", false, errors.New("still fail")).Once()
		fallback.On("AcquireLock", ctx, "e", time.Second).Return("tok-e", true, nil).Once()

		token, ok, err := repo.AcquireLock(ctx, "e", time.Second)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "tok-e", token)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("ReleaseLockFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("ReleaseLock", ctx, "f", "tok-f").Return(errors.New("fail")).Once()
		fallback.On("ReleaseLock", ctx, "f", "tok-f").Return(nil).Once()

		assert.NoError(t, repo.ReleaseLock(ctx, "f", "tok-f"))
		assert.True(t, repo.isDown.Load())
	})

	t.Run("CheckRateLimitSuccess", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "org", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "org", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		primary.AssertExpectations(t)
	})
}
