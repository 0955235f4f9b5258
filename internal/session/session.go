// Package session implements the step-by-step booking wizard.
//
// A Session owns one draft. Every action re-runs the eligibility policy
// against the draft and advances the state only when the draft stays
// bookable. Confirm hands the draft to the booking store exactly once.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"courtbook/internal/models"
	"courtbook/internal/policy"
	"courtbook/internal/pricing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingCreator persists a confirmed draft.
type BookingCreator interface {
	CreateBooking(ctx context.Context, booking *models.Booking, participants []models.Participant) (int64, error)
}

type Options struct {
	// BookingBlocked disables the calendar: every time pick is rejected.
	BookingBlocked bool
	// ConfirmPage moves the summary to a separate confirmation step.
	ConfirmPage bool
}

type Deps struct {
	Policy         *policy.Policy
	Pricing        *pricing.Calculator
	Courts         []models.Court
	PaymentMethods []models.PaymentMethod
	Schedule       models.Schedule
	Store          BookingCreator
	Clock          func() time.Time
	Location       *time.Location
	Options        Options
	Logger         *zerolog.Logger
}

func (d *Deps) setDefaults() {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Schedule.Close == 0 {
		open, _ := models.ParseTimeOfDay(models.DefaultOpenTime)
		closeAt, _ := models.ParseTimeOfDay(models.DefaultCloseTime)
		d.Schedule = models.Schedule{Open: open, Close: closeAt, SlotMinutes: models.DefaultSlotMinutes}
	}
	if d.Logger == nil {
		nop := zerolog.Nop()
		d.Logger = &nop
	}
}

type Session struct {
	id   string
	deps Deps

	mu            sync.Mutex
	state         models.State
	draft         models.Draft
	lastBookingID int64
	updatedAt     time.Time

	confirming atomic.Bool
}

// New starts an idle session for organizer. A zero date means today.
func New(id string, organizer models.Participant, date models.Date, deps Deps) (*Session, error) {
	deps.setDefaults()
	if deps.Policy == nil || deps.Pricing == nil || deps.Store == nil {
		return nil, fmt.Errorf("session: policy, pricing and store are required")
	}
	if id == "" {
		id = uuid.NewString()
	}

	organizer.Role = models.RoleOrganizer
	if organizer.ID == "" {
		organizer.ID = uuid.NewString()
	}
	if err := validateOrganizer(organizer); err != nil {
		return nil, err
	}

	s := &Session{id: id, deps: deps, state: models.StateIdle}
	if date.IsZero() {
		date = s.today()
	}
	s.draft = models.Draft{Date: date, Participants: []models.Participant{organizer}}
	s.touch()
	return s, nil
}

// Restore rebuilds a session from its persisted state.
func Restore(st *models.SessionState, deps Deps) (*Session, error) {
	deps.setDefaults()
	if deps.Policy == nil || deps.Pricing == nil || deps.Store == nil {
		return nil, fmt.Errorf("session: policy, pricing and store are required")
	}
	if st.State.Rank() < 0 || st.State == models.StateConfirmed {
		return nil, fmt.Errorf("session %s: cannot restore state %q", st.ID, st.State)
	}
	if models.CountRole(st.Draft.Participants, models.RoleOrganizer) != 1 {
		return nil, fmt.Errorf("session %s: draft must have exactly one organizer", st.ID)
	}
	if st.State.AtLeast(models.StateTimeSelected) && st.Draft.StartTime == nil {
		return nil, fmt.Errorf("session %s: draft has no start time", st.ID)
	}
	if st.State.AtLeast(models.StateCourtSelected) && (st.Draft.EndTime == nil || st.Draft.CourtID == "") {
		return nil, fmt.Errorf("session %s: draft has no court", st.ID)
	}
	return &Session{
		id:            st.ID,
		deps:          deps,
		state:         st.State,
		draft:         st.Draft.Clone(),
		lastBookingID: st.LastBookingID,
		updatedAt:     st.UpdatedAt,
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() models.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Persisted returns the serializable form of the session.
func (s *Session) Persisted() *models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.SessionState{
		ID:            s.id,
		State:         s.state,
		Draft:         s.draft.Clone(),
		LastBookingID: s.lastBookingID,
		UpdatedAt:     s.updatedAt,
	}
}

func (s *Session) today() models.Date {
	return models.DateOf(s.deps.Clock().In(s.deps.Location))
}

func (s *Session) touch() { s.updatedAt = s.deps.Clock().UTC() }

// lock acquires the mutex unless a confirm is being persisted.
func (s *Session) lock() error {
	s.mu.Lock()
	if s.confirming.Load() {
		s.mu.Unlock()
		return ErrConfirmInFlight
	}
	return nil
}

func (s *Session) check(d models.Draft) policy.Result {
	return s.deps.Policy.Check(policy.Input{
		Date:       d.Date,
		Today:      s.today(),
		CourtID:    d.CourtID,
		GuestCount: d.GuestCount(),
	})
}

func (s *Session) ineligible(r policy.Result) *IneligibleError {
	return &IneligibleError{
		Result:    r,
		Suggested: s.deps.Policy.EarliestAvailableDate(s.today()),
		Blocked:   s.deps.Options.BookingBlocked,
	}
}

func (s *Session) requireState(action string, allowed ...models.State) error {
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return &TransitionError{Action: action, State: s.state}
}

func (s *Session) court(id string) (models.Court, bool) {
	for _, c := range s.deps.Courts {
		if c.ID == id && c.IsActive {
			return c, true
		}
	}
	return models.Court{}, false
}

// discardBelow moves to target and drops every selection made after it.
func (s *Session) discardBelow(target models.State) {
	if target.Rank() < models.StatePaymentSelected.Rank() {
		s.draft.PaymentMethod = ""
	}
	if target.Rank() < models.StateCourtSelected.Rank() {
		s.draft.CourtID = ""
		s.draft.CourtName = ""
		s.draft.DurationMinutes = 0
		s.draft.EndTime = nil
		s.draft.Participants = []models.Participant{s.draft.Organizer()}
	}
	if target.Rank() < models.StateTimeSelected.Rank() {
		s.draft.StartTime = nil
	}
	s.state = target
	s.touch()
}

// SelectDate changes the picker date before a time is chosen.
func (s *Session) SelectDate(date models.Date) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.requireState("select date", models.StateIdle); err != nil {
		return err
	}
	if date.IsZero() {
		return invalidField("date", "required", "date is required")
	}
	if s.deps.Options.BookingBlocked {
		return s.ineligible(policy.Result{Reason: policy.ReasonAdvanceWindowExceeded})
	}
	if r := s.deps.Policy.CheckAdvance(date, s.today()); r.Failed() {
		return s.ineligible(r)
	}
	s.draft.Date = date
	s.touch()
	return nil
}

// SelectTime picks the start slot. It is accepted from any state; a
// re-pick discards the court, players and payment chosen so far. A
// rejected pick resets the session to idle.
func (s *Session) SelectTime(date models.Date, start models.TimeOfDay) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if date.IsZero() {
		date = s.draft.Date
	}
	if !s.deps.Schedule.IsSlotStart(start) {
		return invalidField("start_time", "slot", fmt.Sprintf("start time %s is not a bookable slot", start))
	}

	if s.deps.Options.BookingBlocked {
		s.discardBelow(models.StateIdle)
		s.deps.Logger.Debug().Str("session_id", s.id).Msg("time pick rejected: booking blocked")
		return s.ineligible(policy.Result{Reason: policy.ReasonAdvanceWindowExceeded})
	}

	candidate := models.Draft{Date: date, Participants: []models.Participant{s.draft.Organizer()}}
	if r := s.check(candidate); r.Failed() {
		s.discardBelow(models.StateIdle)
		s.deps.Logger.Debug().
			Str("session_id", s.id).
			Str("date", date.String()).
			Str("reason", string(r.Reason)).
			Msg("time pick rejected")
		return s.ineligible(r)
	}

	s.discardBelow(models.StateIdle)
	s.draft.Date = date
	st := start
	s.draft.StartTime = &st
	s.state = models.StateTimeSelected
	return nil
}

// SelectCourt picks court and duration for the chosen start time.
func (s *Session) SelectCourt(courtID string, durationMinutes int) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.requireState("select court", models.StateTimeSelected, models.StateCourtSelected); err != nil {
		return err
	}

	court, ok := s.court(courtID)
	if !ok {
		return invalidField("court_id", "oneof", fmt.Sprintf("unknown court %q", courtID))
	}
	if !s.deps.Pricing.HasDuration(durationMinutes) {
		return invalidField("duration", "oneof", fmt.Sprintf("duration %d is not offered", durationMinutes))
	}
	start := *s.draft.StartTime
	if !s.deps.Schedule.Fits(start, durationMinutes) {
		return invalidField("duration", "closing", "booking must end by closing time")
	}

	candidate := s.draft.Clone()
	candidate.CourtID = court.ID
	if r := s.check(candidate); r.Failed() {
		return s.ineligible(r)
	}

	end := start.Add(durationMinutes)
	s.draft.CourtID = court.ID
	s.draft.CourtName = court.Name
	s.draft.DurationMinutes = durationMinutes
	s.draft.EndTime = &end
	s.draft.PaymentMethod = ""
	s.state = models.StateCourtSelected
	s.touch()
	return nil
}

// AddParticipant adds a member or guest to the draft.
func (s *Session) AddParticipant(in ParticipantInput) (models.Participant, error) {
	if err := s.lock(); err != nil {
		return models.Participant{}, err
	}
	defer s.mu.Unlock()

	if err := s.requireState("add participant", models.StateCourtSelected); err != nil {
		return models.Participant{}, err
	}

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Participant{}, err
	}

	if in.Role == models.RoleGuest && !s.deps.Policy.CanAddGuest(s.draft.GuestCount()) {
		return models.Participant{}, s.ineligible(policy.Result{Reason: policy.ReasonGuestQuotaExceeded})
	}

	p := models.Participant{
		ID:          uuid.NewString(),
		DisplayName: in.Name,
		Surname:     in.Surname,
		Email:       in.Email,
		Role:        in.Role,
	}
	candidate := s.draft.Clone()
	candidate.Participants = append(candidate.Participants, p)
	if r := s.check(candidate); r.Failed() {
		return models.Participant{}, s.ineligible(r)
	}

	s.draft.Participants = candidate.Participants
	s.touch()
	return p, nil
}

func (s *Session) RemoveParticipant(id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.requireState("remove participant", models.StateCourtSelected); err != nil {
		return err
	}
	for i, p := range s.draft.Participants {
		if p.ID != id {
			continue
		}
		if p.IsOrganizer() {
			return ErrOrganizerRequired
		}
		s.draft.Participants = append(s.draft.Participants[:i:i], s.draft.Participants[i+1:]...)
		s.touch()
		return nil
	}
	return ErrParticipantNotFound
}

func (s *Session) ConfirmPlayers() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.requireState("confirm players", models.StateCourtSelected); err != nil {
		return err
	}
	if r := s.check(s.draft); r.Failed() {
		return s.ineligible(r)
	}
	s.state = models.StatePlayersConfirmed
	s.touch()
	return nil
}

func (s *Session) SelectPayment(method string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := s.requireState("select payment", models.StatePlayersConfirmed, models.StatePaymentSelected); err != nil {
		return err
	}
	known := false
	for _, m := range s.deps.PaymentMethods {
		if m.ID == method {
			known = true
			break
		}
	}
	if !known {
		return invalidField("payment_method", "oneof", fmt.Sprintf("unknown payment method %q", method))
	}
	if r := s.check(s.draft); r.Failed() {
		return s.ineligible(r)
	}
	s.draft.PaymentMethod = method
	s.state = models.StatePaymentSelected
	s.touch()
	return nil
}

// Confirm persists the draft. Only one confirm may run at a time; a
// failed store call leaves the draft in place for a retry.
func (s *Session) Confirm(ctx context.Context) (*models.Booking, error) {
	if !s.confirming.CompareAndSwap(false, true) {
		return nil, ErrConfirmInFlight
	}
	defer s.confirming.Store(false)

	s.mu.Lock()
	if err := s.requireState("confirm", models.StatePaymentSelected); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if r := s.check(s.draft); r.Failed() {
		s.mu.Unlock()
		return nil, s.ineligible(r)
	}
	booking, participants := s.buildBooking()
	s.mu.Unlock()

	id, err := s.deps.Store.CreateBooking(ctx, booking, participants)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.deps.Logger.Error().Err(err).Str("session_id", s.id).Msg("booking confirmation failed")
		return nil, &PersistenceError{Err: err}
	}

	booking.ID = id
	s.lastBookingID = id
	s.discardBelow(models.StateIdle)

	s.deps.Logger.Info().
		Str("session_id", s.id).
		Int64("booking_id", id).
		Str("court_id", booking.CourtID).
		Str("date", booking.Date.String()).
		Msg("booking confirmed")
	return booking, nil
}

func (s *Session) buildBooking() (*models.Booking, []models.Participant) {
	court, _ := s.court(s.draft.CourtID)
	price := s.deps.Pricing.Calculate(s.draft.DurationMinutes, court.Surcharge(), s.draft.Participants)

	participants := make([]models.Participant, len(s.draft.Participants))
	copy(participants, s.draft.Participants)

	return &models.Booking{
		Date:            s.draft.Date,
		StartTime:       *s.draft.StartTime,
		EndTime:         *s.draft.EndTime,
		DurationMinutes: s.draft.DurationMinutes,
		CourtID:         s.draft.CourtID,
		CourtName:       s.draft.CourtName,
		BasePrice:       price.CourtFee,
		TotalPrice:      price.Total,
		PaymentMethod:   s.draft.PaymentMethod,
	}, participants
}

// Back steps one state toward idle. It is a no-op when idle.
func (s *Session) Back() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.state == models.StateIdle {
		return nil
	}
	s.discardBelow(steps[s.state.Rank()-1])
	return nil
}

// BackTo returns to an earlier state, discarding later selections.
func (s *Session) BackTo(target models.State) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if target.Rank() < 0 || target == models.StateConfirmed || target.Rank() > s.state.Rank() {
		return &TransitionError{Action: "back to " + string(target), State: s.state}
	}
	s.discardBelow(target)
	return nil
}

// Cancel abandons the draft. Nothing is persisted.
func (s *Session) Cancel() error {
	return s.BackTo(models.StateIdle)
}

// steps are the wizard states indexed by rank.
var steps = []models.State{
	models.StateIdle,
	models.StateTimeSelected,
	models.StateCourtSelected,
	models.StatePlayersConfirmed,
	models.StatePaymentSelected,
}
