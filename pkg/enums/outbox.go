package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType names the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder  OutboxAggregateType = "order"
	AggregatePayout OutboxAggregateType = "payout"
)

// OutboxEventType names a domain event relayed through the outbox.
type OutboxEventType string

const (
	EventOrderPaid       OutboxEventType = "order_paid"
	EventOrderCompleted  OutboxEventType = "order_completed"
	EventOrderCancelled  OutboxEventType = "order_cancelled"
	EventPayoutRequested OutboxEventType = "payout_requested"
	EventPayoutCompleted OutboxEventType = "payout_completed"
)

// eventAggregates is the closed set of event types, each tied to the only
// aggregate it may be emitted for.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderPaid:       AggregateOrder,
	EventOrderCompleted:  AggregateOrder,
	EventOrderCancelled:  AggregateOrder,
	EventPayoutRequested: AggregatePayout,
	EventPayoutCompleted: AggregatePayout,
}

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregatePayout
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e belongs to, or "" when e is unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

// EventTypesFor lists the event types of one aggregate in sorted order.
func EventTypesFor(a OutboxAggregateType) []OutboxEventType {
	var out []OutboxEventType
	for e, owner := range eventAggregates {
		if owner == a {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
