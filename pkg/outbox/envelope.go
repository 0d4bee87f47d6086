package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
)

// EnvelopeVersion is the newest envelope layout this build writes and reads.
const EnvelopeVersion = 1

// ActorRef identifies who produced the event. Sweeps emit without an actor.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope wraps every quote event stored in outbox_events. EventID
// equals the outbox row id, so consumers can dedupe redeliveries on it.
type PayloadEnvelope struct {
	Version    int                   `json:"version"`
	EventID    string                `json:"eventId"`
	EventType  enums.OutboxEventType `json:"eventType,omitempty"`
	OccurredAt time.Time             `json:"occurredAt"`
	Actor      *ActorRef             `json:"actor,omitempty"`
	Data       json.RawMessage       `json:"data"`
}

func newEnvelope(id uuid.UUID, event DomainEvent, data json.RawMessage) PayloadEnvelope {
	return PayloadEnvelope{
		Version:    event.Version,
		EventID:    id.String(),
		EventType:  event.EventType,
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
}

// Validate rejects envelopes a consumer could not interpret.
func (e PayloadEnvelope) Validate() error {
	if e.Version < 1 || e.Version > EnvelopeVersion {
		return fmt.Errorf("unsupported envelope version %d", e.Version)
	}
	if _, err := uuid.Parse(e.EventID); err != nil {
		return fmt.Errorf("envelope event id %q: %w", e.EventID, err)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("envelope missing occurredAt")
	}
	return nil
}
