package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/asbolsyn/mealmarket-backend/pkg/config"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type to a topic and knows how to decode
// its data block.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (payloads.Keyed, error)
}

// ResolvedEvent is a row that passed every publish-time check.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    payloads.Keyed
}

// EventRegistry holds the publishable event types. A row the registry
// cannot resolve will never become publishable and goes to the DLQ.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a publish failure that retrying cannot fix.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// describe binds event type T to a topic.
func describe[T payloads.Keyed](eventType enums.OutboxEventType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: eventType.Aggregate(),
		Topic:         topic,
		decode: func(raw json.RawMessage) (payloads.Keyed, error) {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// NewEventRegistry sends order lifecycle events to the orders topic and
// payout events to the payouts topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	var errs []error
	if cfg.OrdersTopic == "" {
		errs = append(errs, errors.New("orders topic is required"))
	}
	if cfg.PayoutsTopic == "" {
		errs = append(errs, errors.New("payouts topic is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	orders, payouts := cfg.OrdersTopic, cfg.PayoutsTopic
	descriptors := []EventDescriptor{
		describe[payloads.OrderPaidEvent](enums.EventOrderPaid, orders),
		describe[payloads.OrderCompletedEvent](enums.EventOrderCompleted, orders),
		describe[payloads.OrderCancelledEvent](enums.EventOrderCancelled, orders),
		describe[payloads.PayoutRequestedEvent](enums.EventPayoutRequested, payouts),
		describe[payloads.PayoutCompletedEvent](enums.EventPayoutCompleted, payouts),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Topics lists the distinct topics, sorted.
func (r *EventRegistry) Topics() []string {
	out := make([]string, 0, 2)
	for _, desc := range r.entries {
		out = append(out, desc.Topic)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Resolve checks the row against its descriptor, decodes the envelope and
// confirms the payload describes the row's aggregate. Every failure is
// non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryable("%s belongs to %s aggregates, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryable("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	if err := envelope.Validate(); err != nil {
		return nil, NewNonRetryableError(err)
	}

	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	if key := payload.AggregateKey(); key != event.AggregateID {
		return nil, nonRetryable("%s payload names aggregate %s, row has %s", event.EventType, key, event.AggregateID)
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
