package session

import (
	"courtbook/internal/models"
	"courtbook/internal/policy"
	"courtbook/internal/pricing"
)

// Snapshot is everything a client needs to render the wizard.
type Snapshot struct {
	ID                    string                 `json:"id"`
	State                 models.State           `json:"state"`
	Draft                 models.Draft           `json:"draft"`
	Eligibility           policy.Result          `json:"eligibility"`
	Price                 *pricing.Breakdown     `json:"price,omitempty"`
	UnlockedSections      []models.Section       `json:"unlocked_sections"`
	EarliestAvailableDate models.Date            `json:"earliest_available_date"`
	LastBookingID         int64                  `json:"last_booking_id,omitempty"`
	BookingBlocked        bool                   `json:"booking_blocked"`
	Durations             []int                  `json:"durations"`
	DisabledCourts        []string               `json:"disabled_courts,omitempty"`
	GuestsRemaining       int                    `json:"guests_remaining"`
	PaymentMethods        []models.PaymentMethod `json:"payment_methods"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.today()
	snap := Snapshot{
		ID:                    s.id,
		State:                 s.state,
		Draft:                 s.draft.Clone(),
		Eligibility:           s.check(s.draft),
		UnlockedSections:      UnlockedSections(s.state, s.deps.Options.ConfirmPage),
		EarliestAvailableDate: s.deps.Policy.EarliestAvailableDate(today),
		LastBookingID:         s.lastBookingID,
		BookingBlocked:        s.deps.Options.BookingBlocked,
		Durations:             s.deps.Pricing.Durations(),
		PaymentMethods:        s.deps.PaymentMethods,
	}

	if s.deps.Options.BookingBlocked {
		snap.Eligibility = policy.Result{Bookable: false, Reason: policy.ReasonAdvanceWindowExceeded}
	}

	if s.draft.DurationMinutes > 0 {
		court, _ := s.court(s.draft.CourtID)
		price := s.deps.Pricing.Calculate(s.draft.DurationMinutes, court.Surcharge(), s.draft.Participants)
		snap.Price = &price
	}

	for _, c := range s.deps.Courts {
		if s.deps.Policy.IsRestricted(c.ID) {
			snap.DisabledCourts = append(snap.DisabledCourts, c.ID)
		}
	}

	if remaining := s.deps.Policy.MaxGuests() - s.draft.GuestCount(); remaining > 0 {
		snap.GuestsRemaining = remaining
	}
	return snap
}

// UnlockedSections derives the visible wizard sections from the state alone.
func UnlockedSections(state models.State, confirmPage bool) []models.Section {
	sections := []models.Section{models.SectionTime}
	if state.AtLeast(models.StateTimeSelected) {
		sections = append(sections, models.SectionCourt)
	}
	if state.AtLeast(models.StateCourtSelected) {
		sections = append(sections, models.SectionPlayers)
	}
	if state.AtLeast(models.StatePlayersConfirmed) {
		sections = append(sections, models.SectionPayment)
	}
	if state.AtLeast(models.StatePaymentSelected) || (!confirmPage && state.AtLeast(models.StateCourtSelected)) {
		sections = append(sections, models.SectionSummary)
	}
	if state.AtLeast(models.StatePaymentSelected) {
		sections = append(sections, models.SectionConfirm)
	}
	return sections
}
