package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/session"

	"github.com/rs/zerolog"
)

var (
	ErrRateLimited = errors.New("too many sessions, try again later")
	ErrSessionBusy = errors.New("session is being updated by another request")
)

type SessionConfig struct {
	ConfirmPage bool
	LockTTL     time.Duration
	// CreateLimit sessions per client within CreateWindow; 0 disables the check.
	CreateLimit  int
	CreateWindow time.Duration
}

// SessionService keeps wizard sessions in the draft repository between
// requests. Every mutation runs under a per-session lock.
type SessionService struct {
	repo     domain.SessionRepository
	bookings *BookingService
	cfg      SessionConfig
	logger   *zerolog.Logger
}

func NewSessionService(repo domain.SessionRepository, bookings *BookingService, cfg SessionConfig, logger *zerolog.Logger) *SessionService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Duration(models.DefaultConfirmLockTTL) * time.Second
	}
	if cfg.CreateWindow <= 0 {
		cfg.CreateWindow = time.Minute
	}
	return &SessionService{
		repo:     repo,
		bookings: bookings,
		cfg:      cfg,
		logger:   logger,
	}
}

// Create starts a session for organizer. clientKey identifies the caller for rate limiting.
func (s *SessionService) Create(ctx context.Context, clientKey string, organizer session.ParticipantInput, date models.Date) (session.Snapshot, error) {
	if s.cfg.CreateLimit > 0 && clientKey != "" {
		ok, err := s.repo.CheckRateLimit(ctx, "sessions:"+clientKey, s.cfg.CreateLimit, s.cfg.CreateWindow)
		if err != nil {
			s.logger.Error().Err(err).Str("client", clientKey).Msg("rate limit check failed")
		} else if !ok {
			return session.Snapshot{}, ErrRateLimited
		}
	}

	in := organizer.Normalize()
	sess, err := session.New("", models.Participant{
		DisplayName: in.Name,
		Surname:     in.Surname,
		Email:       in.Email,
	}, date, s.bookings.SessionDeps(s.cfg.ConfirmPage))
	if err != nil {
		return session.Snapshot{}, err
	}
	if err := s.repo.SaveSession(ctx, sess.Persisted()); err != nil {
		return session.Snapshot{}, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info().Str("session_id", sess.ID()).Str("date", sess.Snapshot().Draft.Date.String()).Msg("booking session started")
	return sess.Snapshot(), nil
}

func (s *SessionService) load(ctx context.Context, id string) (*session.Session, error) {
	st, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return session.Restore(st, s.bookings.SessionDeps(s.cfg.ConfirmPage))
}

func (s *SessionService) Get(ctx context.Context, id string) (session.Snapshot, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Delete abandons a session. Nothing is persisted.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetSession(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteSession(ctx, id)
}

// Apply loads the session, runs action on it and saves the result.
// The state is saved even when action fails, because a rejected time
// pick resets the draft.
func (s *SessionService) Apply(ctx context.Context, id, name string, action func(*session.Session) error) (session.Snapshot, error) {
	var snap session.Snapshot
	err := s.withLock(ctx, id, ErrSessionBusy, func() error {
		sess, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		actionErr := action(sess)
		if err := s.repo.SaveSession(ctx, sess.Persisted()); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		snap = sess.Snapshot()
		return s.observe(id, name, actionErr)
	})
	return snap, err
}

// Confirm persists the session's draft as a booking. A second confirm
// for the same session while one is running gets ErrConfirmInFlight.
func (s *SessionService) Confirm(ctx context.Context, id string) (session.Snapshot, *models.Booking, error) {
	var (
		snap    session.Snapshot
		booking *models.Booking
	)
	err := s.withLock(ctx, id, session.ErrConfirmInFlight, func() error {
		sess, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		b, confirmErr := sess.Confirm(ctx)
		if err := s.repo.SaveSession(ctx, sess.Persisted()); err != nil {
			if confirmErr == nil {
				// the booking exists; the client sees it through last_booking_id on the next read
				s.logger.Error().Err(err).Str("session_id", id).Int64("booking_id", b.ID).Msg("save confirmed session error")
			} else {
				return fmt.Errorf("save session: %w", err)
			}
		}
		snap = sess.Snapshot()
		booking = b
		return s.observe(id, "confirm", confirmErr)
	})
	return snap, booking, err
}

func (s *SessionService) withLock(ctx context.Context, id string, busy error, fn func() error) error {
	key := "session:" + id
	token, ok, err := s.repo.AcquireLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return busy
	}
	defer func() {
		if err := s.repo.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Error().Err(err).Str("session_id", id).Msg("release session lock error")
		}
	}()
	return fn()
}

func (s *SessionService) observe(id, action string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ineligible  *session.IneligibleError
		persistence *session.PersistenceError
	)
	switch {
	case errors.As(err, &ineligible):
		metrics.IncRejection(string(ineligible.Reason()))
		s.logger.Warn().
			Str("session_id", id).
			Str("action", action).
			Str("reason", string(ineligible.Reason())).
			Msg("selection rejected")
	case errors.As(err, &persistence):
		s.logger.Error().Err(persistence.Err).Str("session_id", id).Bool("retryable", persistence.Retryable()).Msg("booking not persisted")
	default:
		s.logger.Debug().Err(err).Str("session_id", id).Str("action", action).Msg("action refused")
	}
	return err
}
