package models

import "time"

type Role string

const (
	RoleOrganizer Role = "organizer"
	RoleMember    Role = "member"
	RoleGuest     Role = "guest"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOrganizer, RoleMember, RoleGuest:
		return true
	}
	return false
}

type Participant struct {
	ID          string `json:"id"`
	BookingID   int64  `json:"booking_id,omitempty"`
	DisplayName string `json:"name"`
	Surname     string `json:"surname,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        Role   `json:"role"`
}

func (p Participant) IsOrganizer() bool { return p.Role == RoleOrganizer }

// FullName joins display name and surname when both are present.
func (p Participant) FullName() string {
	if p.Surname == "" {
		return p.DisplayName
	}
	return p.DisplayName + " " + p.Surname
}

// Booking is a persisted, immutable reservation of a court slot.
type Booking struct {
	ID              int64     `json:"id"`
	Date            Date      `json:"date"`
	StartTime       TimeOfDay `json:"start_time"`
	EndTime         TimeOfDay `json:"end_time"`
	DurationMinutes int       `json:"duration"`
	CourtID         string    `json:"court_id"`
	CourtName       string    `json:"court_name"`
	BasePrice       Amount    `json:"base_price"`
	TotalPrice      Amount    `json:"total_price"`
	PaymentMethod   string    `json:"payment_method,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Overlaps reports whether the booking occupies any part of [start, end) on its court.
func (b Booking) Overlaps(start, end TimeOfDay) bool {
	return b.StartTime < end && start < b.EndTime
}

func CountRole(participants []Participant, role Role) int {
	n := 0
	for _, p := range participants {
		if p.Role == role {
			n++
		}
	}
	return n
}
