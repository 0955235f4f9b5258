package domain

import (
	"context"
	"time"

	"courtbook/internal/models"
)

// BookingStore persists finalized bookings together with their participants.
type BookingStore interface {
	CreateBooking(ctx context.Context, booking *models.Booking, participants []models.Participant) (int64, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context) ([]models.Booking, error)
	ListBookingsByDate(ctx context.Context, date models.Date) ([]models.Booking, error)
	ListBookingsByDateRange(ctx context.Context, from, to models.Date) ([]models.Booking, error)
	ListParticipants(ctx context.Context, bookingID int64) ([]models.Participant, error)
}

// SessionRepository keeps in-progress drafts between requests.
type SessionRepository interface {
	GetSession(ctx context.Context, id string) (*models.SessionState, error)
	SaveSession(ctx context.Context, state *models.SessionState) error
	DeleteSession(ctx context.Context, id string) error
	// AcquireLock takes key for ttl. ok is false while another holder owns
	// it; token identifies this holder for ReleaseLock.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// ReleaseLock deletes key only while token still owns it.
	ReleaseLock(ctx context.Context, key, token string) error
	// CheckRateLimit counts one hit for key and reports whether it is within limit.
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
