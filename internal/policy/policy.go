// Package policy decides whether a date, court and guest count are bookable.
package policy

import (
	"courtbook/internal/config"
	"courtbook/internal/models"
)

type Reason string

const (
	ReasonNone                  Reason = "none"
	ReasonAdvanceWindowExceeded Reason = "advance_window_exceeded"
	ReasonResourceRestricted    Reason = "resource_restricted"
	ReasonGuestQuotaExceeded    Reason = "guest_quota_exceeded"
)

// Message is the user-facing text for a rejection reason.
func (r Reason) Message() string {
	switch r {
	case ReasonAdvanceWindowExceeded:
		return "booking in advance is only possible within the advance window"
	case ReasonResourceRestricted:
		return "this court is not available for your membership"
	case ReasonGuestQuotaExceeded:
		return "guest limit reached for this booking; the quota resets daily"
	default:
		return ""
	}
}

type Result struct {
	Bookable bool   `json:"bookable"`
	Reason   Reason `json:"reason"`
}

func allowed() Result             { return Result{Bookable: true, Reason: ReasonNone} }
func rejected(r Reason) Result    { return Result{Bookable: false, Reason: r} }
func (r Result) Failed() bool     { return !r.Bookable }
func (r Result) Is(x Reason) bool { return r.Reason == x }

type Input struct {
	Date       models.Date
	Today      models.Date
	CourtID    string
	GuestCount int
}

type Policy struct {
	advanceWindowDays int
	restricted        map[string]struct{}
	maxGuests         int
}

func New(advanceWindowDays int, restrictedCourtIDs []string, maxGuests int) *Policy {
	restricted := make(map[string]struct{}, len(restrictedCourtIDs))
	for _, id := range restrictedCourtIDs {
		restricted[id] = struct{}{}
	}
	return &Policy{
		advanceWindowDays: advanceWindowDays,
		restricted:        restricted,
		maxGuests:         maxGuests,
	}
}

func FromConfig(cfg config.BookingConfig) *Policy {
	return New(cfg.AdvanceWindowDays, cfg.RestrictedCourtIDs, cfg.MaxGuests)
}

func (p *Policy) AdvanceWindowDays() int { return p.advanceWindowDays }
func (p *Policy) MaxGuests() int         { return p.maxGuests }

// Check runs every rule in priority order; the first failing rule wins.
func (p *Policy) Check(in Input) Result {
	if r := p.CheckAdvance(in.Date, in.Today); r.Failed() {
		return r
	}
	if r := p.CheckCourt(in.CourtID); r.Failed() {
		return r
	}
	return p.CheckGuests(in.GuestCount)
}

// CheckAdvance allows dates up to and including today + advance window.
func (p *Policy) CheckAdvance(date, today models.Date) Result {
	if date.After(p.EarliestAvailableDate(today)) {
		return rejected(ReasonAdvanceWindowExceeded)
	}
	return allowed()
}

// CheckCourt passes an empty court id so a draft without a court is not rejected.
func (p *Policy) CheckCourt(courtID string) Result {
	if p.IsRestricted(courtID) {
		return rejected(ReasonResourceRestricted)
	}
	return allowed()
}

func (p *Policy) CheckGuests(guestCount int) Result {
	if guestCount > p.maxGuests {
		return rejected(ReasonGuestQuotaExceeded)
	}
	return allowed()
}

func (p *Policy) CanAddGuest(current int) bool {
	return current < p.maxGuests
}

func (p *Policy) IsRestricted(courtID string) bool {
	if courtID == "" {
		return false
	}
	_, ok := p.restricted[courtID]
	return ok
}

// EarliestAvailableDate is the date suggested when a pick falls outside the window.
func (p *Policy) EarliestAvailableDate(today models.Date) models.Date {
	return today.AddDays(p.advanceWindowDays)
}
