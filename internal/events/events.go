package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"courtbook/internal/models"
)

const (
	EventBookingCreated = "booking_created"
	// EventAll subscribes a handler to every event type.
	EventAll = "*"
)

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID     int64         `json:"booking_id"`
	Date          models.Date   `json:"date"`
	StartTime     string        `json:"start_time"`
	EndTime       string        `json:"end_time"`
	CourtID       string        `json:"court_id"`
	CourtName     string        `json:"court_name"`
	TotalPrice    models.Amount `json:"total_price"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	Organizer     string        `json:"organizer"`
	Participants  int           `json:"participants"`
	Guests        int           `json:"guests"`
}

// NewBookingPayload flattens a stored booking for the event stream.
func NewBookingPayload(b *models.Booking, participants []models.Participant) BookingEventPayload {
	organizer := ""
	for _, p := range participants {
		if p.IsOrganizer() {
			organizer = p.FullName()
			break
		}
	}
	return BookingEventPayload{
		BookingID:     b.ID,
		Date:          b.Date,
		StartTime:     b.StartTime.String(),
		EndTime:       b.EndTime.String(),
		CourtID:       b.CourtID,
		CourtName:     b.CourtName,
		TotalPrice:    b.TotalPrice,
		PaymentMethod: b.PaymentMethod,
		Organizer:     organizer,
		Participants:  len(participants),
		Guests:        models.CountRole(participants, models.RoleGuest),
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type, or EventAll.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the handlers synchronously and joins their errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[EventAll]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}
	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// MarshalEnvelope encodes the event with its type and timestamp.
func MarshalEnvelope(event *Event) ([]byte, error) {
	return json.Marshal(event)
}
