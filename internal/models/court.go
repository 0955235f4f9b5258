package models

// Court is a bookable resource from the catalogue.
type Court struct {
	ID        string  `yaml:"id" json:"id"`
	Name      string  `yaml:"name" json:"name"`
	BasePrice float64 `yaml:"base_price" json:"-"`
	SortOrder int     `yaml:"sort_order" json:"sort_order"`
	IsActive  bool    `yaml:"is_active" json:"is_active"`
}

func (c Court) Surcharge() Amount { return AmountFromFloat(c.BasePrice) }

// Member is an entry of the club directory offered by the add-player search.
type Member struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Surname string `yaml:"surname" json:"surname,omitempty"`
	Email   string `yaml:"email" json:"email,omitempty"`
	Role    Role   `yaml:"role" json:"role"`
}

type PaymentMethod struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// SlotStatus is the state of one cell in the availability grid.
type SlotStatus string

const (
	SlotFree       SlotStatus = "free"
	SlotBooked     SlotStatus = "booked"
	SlotRestricted SlotStatus = "restricted"
	SlotBlocked    SlotStatus = "blocked"
	SlotPast       SlotStatus = "past"
)

type Slot struct {
	Start     TimeOfDay  `json:"start"`
	End       TimeOfDay  `json:"end"`
	Status    SlotStatus `json:"status"`
	BookingID int64      `json:"booking_id,omitempty"`
}

type CourtAvailability struct {
	CourtID   string `json:"court_id"`
	CourtName string `json:"court_name"`
	Slots     []Slot `json:"slots"`
}

type AvailabilityGrid struct {
	Date                  Date                `json:"date"`
	EarliestAvailableDate Date                `json:"earliest_available_date"`
	Courts                []CourtAvailability `json:"courts"`
}

// Schedule is the daily opening window split into start slots.
type Schedule struct {
	Open        TimeOfDay
	Close       TimeOfDay
	SlotMinutes int
}

// IsSlotStart reports whether t is a valid start slot inside the opening window.
func (s Schedule) IsSlotStart(t TimeOfDay) bool {
	if t < s.Open || t >= s.Close {
		return false
	}
	return s.SlotMinutes <= 0 || int(t-s.Open)%s.SlotMinutes == 0
}

// Fits reports whether a booking of the given length starting at t ends by closing time.
func (s Schedule) Fits(t TimeOfDay, minutes int) bool {
	return s.IsSlotStart(t) && t.Add(minutes) <= s.Close
}

func (s Schedule) Slots() []TimeOfDay {
	if s.SlotMinutes <= 0 {
		return nil
	}
	out := make([]TimeOfDay, 0, int(s.Close-s.Open)/s.SlotMinutes)
	for t := s.Open; t < s.Close; t = t.Add(s.SlotMinutes) {
		out = append(out, t)
	}
	return out
}
