package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/events"
	"courtbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const deadLetterKey = "events:deadletter"

// Sink receives events leaving the process, e.g. a message broker.
type Sink interface {
	Publish(ctx context.Context, event *events.Event) error
}

// ResultRecorder counts forwarding outcomes.
type ResultRecorder func(eventType, result string)

type task struct {
	event   *events.Event
	attempt int
}

// EventForwarder drains bus events into a Sink, retrying with backoff.
// Events that exhaust the retry budget go to a Redis dead-letter list when
// a client is configured.
type EventForwarder struct {
	sink        Sink
	redis       *redis.Client
	retryPolicy RetryPolicy
	queue       chan task
	logger      *zerolog.Logger
	record      ResultRecorder
}

func NewEventForwarder(sink Sink, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *EventForwarder {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventForwarder{
		sink:        sink,
		redis:       redisClient,
		retryPolicy: retry.withDefaults(),
		queue:       make(chan task, models.EventWorkerQueueSize),
		logger:      logger,
		record:      func(string, string) {},
	}
}

// OnResult sets a callback for forwarded/retried/dropped outcomes.
func (f *EventForwarder) OnResult(r ResultRecorder) {
	if r != nil {
		f.record = r
	}
}

// Attach subscribes the forwarder to every event on bus.
func (f *EventForwarder) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventAll, f.Enqueue)
}

// Enqueue never blocks; a full queue drops the event to the dead-letter list.
func (f *EventForwarder) Enqueue(event *events.Event) error {
	if event == nil || event.Type == "" {
		return errors.New("event type is required")
	}
	select {
	case f.queue <- task{event: event}:
		return nil
	default:
		f.logger.Warn().Str("event_type", event.Type).Msg("Event queue full, dead-lettering")
		f.deadLetter(context.Background(), event, errors.New("queue full"))
		return fmt.Errorf("event queue full")
	}
}

// Start processes events until ctx is done.
func (f *EventForwarder) Start(ctx context.Context) {
	f.logger.Info().Msg("Event forwarder started")
	defer f.logger.Info().Msg("Event forwarder stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-f.queue:
			f.process(ctx, t)
		}
	}
}

func (f *EventForwarder) process(ctx context.Context, t task) {
	for {
		err := f.sink.Publish(ctx, t.event)
		if err == nil {
			f.record(t.event.Type, "forwarded")
			return
		}

		t.attempt++
		if f.retryPolicy.Exhausted(t.attempt) {
			f.logger.Error().Err(err).Str("event_type", t.event.Type).Int("attempts", t.attempt).Msg("Event forwarding failed")
			f.record(t.event.Type, "dropped")
			f.deadLetter(ctx, t.event, err)
			return
		}

		delay := f.retryPolicy.NextDelay(t.attempt)
		f.logger.Warn().Err(err).Str("event_type", t.event.Type).Dur("retry_in", delay).Msg("Event forwarding failed, retrying")
		f.record(t.event.Type, "retried")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			f.deadLetter(context.Background(), t.event, ctx.Err())
			return
		case <-timer.C:
		}
	}
}

type deadLetterEntry struct {
	Event  *events.Event `json:"event"`
	Reason string        `json:"reason"`
}

func (f *EventForwarder) deadLetter(ctx context.Context, event *events.Event, cause error) {
	if f.redis == nil {
		return
	}
	data, err := json.Marshal(deadLetterEntry{Event: event, Reason: cause.Error()})
	if err != nil {
		f.logger.Error().Err(err).Msg("Encode dead letter")
		return
	}
	if err := f.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Msg("Dead letter push failed")
	}
}
