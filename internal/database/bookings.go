package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

const bookingColumns = `id, date, start_time, end_time, duration, court_id, court_name,
	                 base_price, total_price, payment_method, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var payment sql.NullString
	err := row.Scan(
		&b.ID, &b.Date, &b.StartTime, &b.EndTime, &b.DurationMinutes,
		&b.CourtID, &b.CourtName, &b.BasePrice, &b.TotalPrice, &payment, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.PaymentMethod = payment.String
	return &b, nil
}

// CreateBooking writes the booking and its participants in one
// transaction. It fails with domain.ErrSlotTaken when the court is
// already booked for an overlapping time on that date.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking, participants []models.Participant) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Check the slot inside the transaction
	var conflicts int
	queryConflict := `SELECT COUNT(*) FROM bookings
	                  WHERE court_id = ? AND date = ? AND start_time < ? AND end_time > ?`
	err = tx.QueryRowContext(ctx, queryConflict,
		booking.CourtID, booking.Date, booking.EndTime, booking.StartTime).Scan(&conflicts)
	if err != nil {
		return 0, fmt.Errorf("failed to check slot in tx: %w", err)
	}
	if conflicts > 0 {
		return 0, domain.ErrSlotTaken
	}

	// 2. Insert the booking
	now := time.Now().UTC()
	queryInsert := `INSERT INTO bookings (
				date, start_time, end_time, duration, court_id, court_name,
				base_price, total_price, payment_method, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, queryInsert,
		booking.Date,
		booking.StartTime,
		booking.EndTime,
		booking.DurationMinutes,
		booking.CourtID,
		booking.CourtName,
		booking.BasePrice,
		booking.TotalPrice,
		booking.PaymentMethod,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	// 3. Insert participants
	queryParticipant := `INSERT INTO participants (
				booking_id, participant_uid, name, surname, email, role, is_organizer
			) VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, p := range participants {
		_, err := tx.ExecContext(ctx, queryParticipant,
			id, p.ID, p.DisplayName, p.Surname, p.Email, string(p.Role), p.IsOrganizer())
		if err != nil {
			return 0, fmt.Errorf("failed to insert participant in tx: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.CreatedAt = now
	db.logger.Debug().
		Int64("booking_id", id).
		Str("court_id", booking.CourtID).
		Int("participants", len(participants)).
		Msg("Booking stored")
	return id, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (db *DB) ListBookings(ctx context.Context) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY date ASC, start_time ASC, id ASC`
	return db.queryBookings(ctx, query)
}

func (db *DB) ListBookingsByDate(ctx context.Context, date models.Date) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE date = ? ORDER BY start_time ASC, id ASC`
	return db.queryBookings(ctx, query, date)
}

// ListBookingsByDateRange includes both ends of the range.
func (db *DB) ListBookingsByDateRange(ctx context.Context, from, to models.Date) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE date >= ? AND date <= ? ORDER BY date ASC, start_time ASC, id ASC`
	return db.queryBookings(ctx, query, from, to)
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// ListParticipants returns the organizer first, then others in insertion order.
func (db *DB) ListParticipants(ctx context.Context, bookingID int64) ([]models.Participant, error) {
	query := `SELECT participant_uid, booking_id, name, surname, email, role
	          FROM participants WHERE booking_id = ? ORDER BY is_organizer DESC, id ASC`
	rows, err := db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		var p models.Participant
		var surname, email sql.NullString
		var role string
		if err := rows.Scan(&p.ID, &p.BookingID, &p.DisplayName, &surname, &email, &role); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.Surname = surname.String
		p.Email = email.String
		p.Role = models.Role(role)
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}
