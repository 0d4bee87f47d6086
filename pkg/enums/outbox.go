package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateQuote OutboxAggregateType = "quote"
	AggregateDeal  OutboxAggregateType = "deal"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateQuote || a == AggregateDeal
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventQuoteCreated       OutboxEventType = "quote_created"
	EventQuoteStatusChanged OutboxEventType = "quote_status_changed"
	EventQuoteRevised       OutboxEventType = "quote_revised"
	EventQuoteConverted     OutboxEventType = "quote_converted"
	EventQuoteExpired       OutboxEventType = "quote_expired"
)

// QuoteEventTypes lists every event a quote aggregate emits, in lifecycle order.
func QuoteEventTypes() []OutboxEventType {
	return []OutboxEventType{
		EventQuoteCreated,
		EventQuoteStatusChanged,
		EventQuoteRevised,
		EventQuoteConverted,
		EventQuoteExpired,
	}
}

func (e OutboxEventType) IsValid() bool {
	switch e {
	case EventQuoteCreated, EventQuoteStatusChanged, EventQuoteRevised, EventQuoteConverted, EventQuoteExpired:
		return true
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
