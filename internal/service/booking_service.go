package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/export"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/policy"
	"courtbook/internal/pricing"
	"courtbook/internal/session"

	"github.com/rs/zerolog"
)

// MaxExportDays bounds the date range of one export.
const MaxExportDays = 366

var ErrInvalidRange = errors.New("invalid date range")

// Catalog is the static configuration the booking service serves from.
type Catalog struct {
	Courts         []models.Court
	Members        []models.Member
	PaymentMethods []models.PaymentMethod
	Schedule       models.Schedule
	BookingBlocked bool
	ExportSheet    string
	Location       *time.Location
}

type BookingService struct {
	store    domain.BookingStore
	eventBus domain.EventPublisher
	policy   *policy.Policy
	pricing  *pricing.Calculator
	catalog  Catalog
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewBookingService(store domain.BookingStore, eventBus domain.EventPublisher, pol *policy.Policy, calc *pricing.Calculator, catalog Catalog, logger *zerolog.Logger) *BookingService {
	if catalog.Location == nil {
		catalog.Location = time.UTC
	}
	courts := append([]models.Court(nil), catalog.Courts...)
	sort.SliceStable(courts, func(i, j int) bool { return courts[i].SortOrder < courts[j].SortOrder })
	catalog.Courts = courts

	return &BookingService{
		store:    store,
		eventBus: eventBus,
		policy:   pol,
		pricing:  calc,
		catalog:  catalog,
		now:      time.Now,
		logger:   logger,
	}
}

// CreateBooking persists a confirmed draft and announces it.
func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking, participants []models.Participant) (int64, error) {
	id, err := s.store.CreateBooking(ctx, booking, participants)
	if err != nil {
		metrics.IncPersistenceFailure()
		s.logger.Error().Err(err).
			Str("court_id", booking.CourtID).
			Str("date", booking.Date.String()).
			Str("start_time", booking.StartTime.String()).
			Msg("create booking error")
		return 0, err
	}
	booking.ID = id

	metrics.IncBookingCreated(booking.CourtID)
	s.publishEvent(events.EventBookingCreated, booking, participants)
	return id, nil
}

// SessionDeps builds wizard dependencies that persist through this service.
func (s *BookingService) SessionDeps(confirmPage bool) session.Deps {
	return session.Deps{
		Policy:         s.policy,
		Pricing:        s.pricing,
		Courts:         s.catalog.Courts,
		PaymentMethods: s.catalog.PaymentMethods,
		Schedule:       s.catalog.Schedule,
		Store:          s,
		Clock:          func() time.Time { return s.now() },
		Location:       s.catalog.Location,
		Options:        session.Options{BookingBlocked: s.catalog.BookingBlocked, ConfirmPage: confirmPage},
		Logger:         s.logger,
	}
}

// BookingRequest is a complete booking submitted in one call.
type BookingRequest struct {
	Date          models.Date                 `json:"date"`
	StartTime     models.TimeOfDay            `json:"start_time"`
	Duration      int                         `json:"duration"`
	CourtID       string                      `json:"court_id"`
	PaymentMethod string                      `json:"payment_method"`
	Participants  []BookingRequestParticipant `json:"participants"`
}

type BookingRequestParticipant struct {
	session.ParticipantInput
	IsOrganizer bool `json:"is_organizer"`
}

// Book runs a full request through the same steps as the wizard, so the
// eligibility, slot and guest rules apply identically.
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	var organizer *BookingRequestParticipant
	others := make([]session.ParticipantInput, 0, len(req.Participants))
	for i := range req.Participants {
		p := req.Participants[i]
		if p.IsOrganizer || p.Role == models.RoleOrganizer {
			if organizer != nil {
				return nil, session.ValidationErrors{{Field: "participants", Tag: "organizer", Message: "only one organizer is allowed"}}
			}
			organizer = &p
			continue
		}
		others = append(others, p.ParticipantInput)
	}
	if organizer == nil {
		return nil, session.ValidationErrors{{Field: "participants", Tag: "organizer", Message: "an organizer is required"}}
	}

	payment := req.PaymentMethod
	if payment == "" && len(s.catalog.PaymentMethods) > 0 {
		payment = s.catalog.PaymentMethods[0].ID
	}

	in := organizer.ParticipantInput.Normalize()
	sess, err := session.New("", models.Participant{
		DisplayName: in.Name,
		Surname:     in.Surname,
		Email:       in.Email,
	}, req.Date, s.SessionDeps(false))
	if err != nil {
		return nil, err
	}

	if err := sess.SelectTime(req.Date, req.StartTime); err != nil {
		return nil, s.noteRejection(err)
	}
	if err := sess.SelectCourt(req.CourtID, req.Duration); err != nil {
		return nil, s.noteRejection(err)
	}
	for _, p := range others {
		if _, err := sess.AddParticipant(p); err != nil {
			return nil, s.noteRejection(err)
		}
	}
	if err := sess.ConfirmPlayers(); err != nil {
		return nil, s.noteRejection(err)
	}
	if err := sess.SelectPayment(payment); err != nil {
		return nil, err
	}
	return sess.Confirm(ctx)
}

func (s *BookingService) noteRejection(err error) error {
	var ineligible *session.IneligibleError
	if errors.As(err, &ineligible) {
		metrics.IncRejection(string(ineligible.Reason()))
		s.logger.Warn().Str("reason", string(ineligible.Reason())).Msg("booking request rejected")
	}
	return err
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *BookingService) ListBookings(ctx context.Context) ([]models.Booking, error) {
	return s.store.ListBookings(ctx)
}

func (s *BookingService) ListByDate(ctx context.Context, date models.Date) ([]models.Booking, error) {
	return s.store.ListBookingsByDate(ctx, date)
}

// ListParticipants returns ErrNotFound for an unknown booking instead of an empty list.
func (s *BookingService) ListParticipants(ctx context.Context, bookingID int64) ([]models.Participant, error) {
	if _, err := s.store.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.store.ListParticipants(ctx, bookingID)
}

func (s *BookingService) Courts() []models.Court {
	out := make([]models.Court, 0, len(s.catalog.Courts))
	for _, c := range s.catalog.Courts {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out
}

func (s *BookingService) PaymentMethods() []models.PaymentMethod {
	return s.catalog.PaymentMethods
}

// SearchMembers matches q against name, surname and email, ignoring case.
func (s *BookingService) SearchMembers(q string) []models.Member {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]models.Member, 0)
	for _, m := range s.catalog.Members {
		if q == "" ||
			strings.Contains(strings.ToLower(m.Name), q) ||
			strings.Contains(strings.ToLower(m.Surname), q) ||
			strings.Contains(strings.ToLower(m.Email), q) {
			out = append(out, m)
		}
	}
	return out
}

// Availability builds the court × slot grid for one day.
func (s *BookingService) Availability(ctx context.Context, date models.Date) (*models.AvailabilityGrid, error) {
	bookings, err := s.store.ListBookingsByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list bookings for %s: %w", date, err)
	}

	now := s.now().In(s.catalog.Location)
	today := models.DateOf(now)
	outsideWindow := s.policy.CheckAdvance(date, today).Failed()

	grid := &models.AvailabilityGrid{
		Date:                  date,
		EarliestAvailableDate: s.policy.EarliestAvailableDate(today),
	}
	for _, court := range s.Courts() {
		row := models.CourtAvailability{CourtID: court.ID, CourtName: court.Name}
		for _, start := range s.catalog.Schedule.Slots() {
			end := start.Add(s.catalog.Schedule.SlotMinutes)
			slot := models.Slot{Start: start, End: end, Status: models.SlotFree}

			for _, b := range bookings {
				if b.CourtID == court.ID && b.Overlaps(start, end) {
					slot.Status = models.SlotBooked
					slot.BookingID = b.ID
					break
				}
			}
			if slot.Status == models.SlotFree {
				switch {
				case date.At(start, s.catalog.Location).Before(now):
					slot.Status = models.SlotPast
				case s.catalog.BookingBlocked || outsideWindow:
					slot.Status = models.SlotBlocked
				case s.policy.IsRestricted(court.ID):
					slot.Status = models.SlotRestricted
				}
			}
			row.Slots = append(row.Slots, slot)
		}
		grid.Courts = append(grid.Courts, row)
	}
	return grid, nil
}

// Export writes an xlsx workbook of the bookings between from and to inclusive.
func (s *BookingService) Export(ctx context.Context, w io.Writer, from, to models.Date) error {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return fmt.Errorf("%w: from must not be after to", ErrInvalidRange)
	}
	if to.After(from.AddDays(MaxExportDays)) {
		return fmt.Errorf("%w: at most %d days per export", ErrInvalidRange, MaxExportDays)
	}

	bookings, err := s.store.ListBookingsByDateRange(ctx, from, to)
	if err != nil {
		return err
	}
	rows := make([]export.Row, 0, len(bookings))
	for _, b := range bookings {
		participants, err := s.store.ListParticipants(ctx, b.ID)
		if err != nil {
			return err
		}
		rows = append(rows, export.Row{Booking: b, Participants: participants})
	}

	s.logger.Info().Str("from", from.String()).Str("to", to.String()).Int("bookings", len(rows)).Msg("exporting bookings")
	return export.WriteBookings(w, s.catalog.ExportSheet, from, to, s.catalog.Courts, rows)
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, participants []models.Participant) {
	if s.eventBus == nil {
		return
	}
	payload := events.NewBookingPayload(booking, participants)
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}
