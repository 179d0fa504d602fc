package relay

import (
	"encoding/json"
	"fmt"
)

// Envelope is a named event with an arbitrary JSON payload
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope, encoding data unless it is already raw JSON.
func NewEnvelope(event string, data any) (Envelope, error) {
	env := Envelope{Event: event}

	switch v := data.(type) {
	case nil:
	case json.RawMessage:
		env.Data = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", event, err)
		}
		env.Data = raw
	}

	return env, nil
}

// Deliverer hands an envelope to one connection
type Deliverer interface {
	Deliver(connID string, env Envelope) error
}
