// Package relaytest provides an in-memory Deliverer for tests.
package relaytest

import (
	"encoding/json"
	"sync"

	"github.com/wricardo/tiltlink/game/relay"
)

// Delivery is one envelope handed to one connection
type Delivery struct {
	ConnID string
	Env    relay.Envelope
}

// Recorder records every delivery in order
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
	failFor    map[string]error
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{failFor: make(map[string]error)}
}

// Deliver implements relay.Deliverer
func (r *Recorder) Deliver(connID string, env relay.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failFor[connID]; err != nil {
		return err
	}
	r.deliveries = append(r.deliveries, Delivery{ConnID: connID, Env: env})
	return nil
}

// FailFor makes every delivery to connID return err
func (r *Recorder) FailFor(connID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failFor[connID] = err
}

// All returns a copy of every delivery so far
func (r *Recorder) All() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// For returns the envelopes delivered to connID
func (r *Recorder) For(connID string) []relay.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []relay.Envelope
	for _, d := range r.deliveries {
		if d.ConnID == connID {
			result = append(result, d.Env)
		}
	}
	return result
}

// Events returns the event names delivered to connID
func (r *Recorder) Events(connID string) []string {
	var names []string
	for _, env := range r.For(connID) {
		names = append(names, env.Event)
	}
	return names
}

// Count returns how many times event was delivered to connID
func (r *Recorder) Count(connID, event string) int {
	n := 0
	for _, env := range r.For(connID) {
		if env.Event == event {
			n++
		}
	}
	return n
}

// Reset forgets all deliveries
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}

// DecodeString decodes a string payload, returning "" if it is not one
func DecodeString(env relay.Envelope) string {
	var s string
	if err := json.Unmarshal(env.Data, &s); err != nil {
		return ""
	}
	return s
}
