package models

import "time"

// State is a step of the booking wizard.
type State string

const (
	StateIdle             State = "idle"
	StateTimeSelected     State = "time_selected"
	StateCourtSelected    State = "court_selected"
	StatePlayersConfirmed State = "players_confirmed"
	StatePaymentSelected  State = "payment_selected"
	StateConfirmed        State = "confirmed"
)

var stateOrder = map[State]int{
	StateIdle:             0,
	StateTimeSelected:     1,
	StateCourtSelected:    2,
	StatePlayersConfirmed: 3,
	StatePaymentSelected:  4,
	StateConfirmed:        5,
}

// Rank is the position of s in the wizard, -1 for unknown states.
func (s State) Rank() int {
	if r, ok := stateOrder[s]; ok {
		return r
	}
	return -1
}

func (s State) AtLeast(o State) bool { return s.Rank() >= o.Rank() }

type Section string

const (
	SectionTime    Section = "time"
	SectionCourt   Section = "court"
	SectionPlayers Section = "players"
	SectionPayment Section = "payment"
	SectionSummary Section = "summary"
	SectionConfirm Section = "confirm"
)

// Draft is the in-progress selection of a booking session.
type Draft struct {
	Date            Date          `json:"date"`
	StartTime       *TimeOfDay    `json:"start_time,omitempty"`
	EndTime         *TimeOfDay    `json:"end_time,omitempty"`
	DurationMinutes int           `json:"duration,omitempty"`
	CourtID         string        `json:"court_id,omitempty"`
	CourtName       string        `json:"court_name,omitempty"`
	Participants    []Participant `json:"participants"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
}

func (d Draft) Organizer() Participant {
	for _, p := range d.Participants {
		if p.IsOrganizer() {
			return p
		}
	}
	return Participant{}
}

func (d Draft) GuestCount() int { return CountRole(d.Participants, RoleGuest) }

// Clone returns a copy that shares no mutable memory with d.
func (d Draft) Clone() Draft {
	c := d
	if d.StartTime != nil {
		st := *d.StartTime
		c.StartTime = &st
	}
	if d.EndTime != nil {
		et := *d.EndTime
		c.EndTime = &et
	}
	c.Participants = append([]Participant(nil), d.Participants...)
	return c
}

// SessionState is the persisted form of a booking session.
type SessionState struct {
	ID            string    `json:"id"`
	State         State     `json:"state"`
	Draft         Draft     `json:"draft"`
	LastBookingID int64     `json:"last_booking_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
