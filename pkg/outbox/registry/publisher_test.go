package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/portal-crm-backend/pkg/config"
	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	quoteID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.QuoteStatusChangedEvent{
		QuoteID: quoteID,
		From:    enums.QuoteStatusDraft,
		To:      enums.QuoteStatusSent,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventQuoteStatusChanged,
		AggregateType: enums.AggregateQuote,
		AggregateID:   quoteID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "quotes-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.QuoteStatusChangedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.QuoteID != quoteID || payload.To != enums.QuoteStatusSent {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryCoversEveryEventType(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventQuoteCreated,
		enums.EventQuoteStatusChanged,
		enums.EventQuoteRevised,
		enums.EventQuoteConverted,
		enums.EventQuoteExpired,
	} {
		if _, ok := reg.entries[eventType]; !ok {
			t.Fatalf("event type %s not registered", eventType)
		}
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected missing topic error")
	}
}

func TestEventRegistryResolveRejections(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     "quote_archived",
			AggregateType: enums.AggregateQuote,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventQuoteConverted,
			AggregateType: enums.AggregateDeal,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventQuoteConverted,
			AggregateType: enums.AggregateQuote,
			AggregateID:   uuid.Nil,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventQuoteExpired,
			AggregateType: enums.AggregateQuote,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"future envelope version": {
			EventType:     enums.EventQuoteExpired,
			AggregateType: enums.AggregateQuote,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":2,"eventId":"` + uuid.NewString() + `","occurredAt":"2026-01-05T09:00:00Z","data":{}}`),
		},
		"malformed event id": {
			EventType:     enums.EventQuoteExpired,
			AggregateType: enums.AggregateQuote,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":1,"eventId":"evt-1","occurredAt":"2026-01-05T09:00:00Z","data":{}}`),
		},
		"envelope for another event": {
			EventType:     enums.EventQuoteExpired,
			AggregateType: enums.AggregateQuote,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":1,"eventId":"` + uuid.NewString() + `","eventType":"quote_created","occurredAt":"2026-01-05T09:00:00Z","data":{}}`),
		},
		"broken envelope": {
			EventType:     enums.EventQuoteExpired,
			AggregateType: enums.AggregateQuote,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"data":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			if err == nil {
				t.Fatalf("expected error")
			}
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %T", err)
			}
		})
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{QuotesTopic: "quotes-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
