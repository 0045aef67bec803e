package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the current wire version of PayloadEnvelope.
const EnvelopeVersion = 1

// ActorRef identifies who triggered the event: the bot service, an operator,
// the payment provider, or a scheduled job.
type ActorRef struct {
	Subject string `json:"subject,omitempty"`
	Role    string `json:"role,omitempty"`
}

// PayloadEnvelope is stored in outbox_events.payload and published verbatim
// as the Pub/Sub message body. Consumers de-duplicate on EventID.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Validate rejects envelopes no consumer could process.
func (e PayloadEnvelope) Validate() error {
	if e.Version < 1 || e.Version > EnvelopeVersion {
		return fmt.Errorf("unsupported envelope version %d", e.Version)
	}
	if _, err := uuid.Parse(e.EventID); err != nil {
		return fmt.Errorf("envelope event id: %w", err)
	}
	if e.OccurredAt.IsZero() {
		return errors.New("envelope occurredAt missing")
	}
	if data := bytes.TrimSpace(e.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.New("envelope data missing")
	}
	return nil
}
