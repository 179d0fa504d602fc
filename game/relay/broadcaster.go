package relay

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Broadcaster maps session codes to the connections in their broadcast group
type Broadcaster struct {
	groups    map[string]map[string]struct{}
	deliverer Deliverer
	mu        sync.RWMutex
}

// NewBroadcaster creates a broadcaster that delivers through d
func NewBroadcaster(d Deliverer) *Broadcaster {
	return &Broadcaster{
		groups:    make(map[string]map[string]struct{}),
		deliverer: d,
	}
}

// Join adds connID to the group for code
func (b *Broadcaster) Join(code, connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.groups[code] == nil {
		b.groups[code] = make(map[string]struct{})
	}
	b.groups[code][connID] = struct{}{}
}

// Leave removes connID from the group for code, dropping empty groups
func (b *Broadcaster) Leave(code, connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.groups[code]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(b.groups, code)
	}
}

// Dissolve removes the whole group for code and returns its former members
func (b *Broadcaster) Dissolve(code string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	members := sortedMembers(b.groups[code])
	delete(b.groups, code)
	return members
}

// Members returns the connection ids currently in the group for code
func (b *Broadcaster) Members(code string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedMembers(b.groups[code])
}

// IsMember reports whether connID is in the group for code
func (b *Broadcaster) IsMember(code, connID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.groups[code][connID]
	return ok
}

// Broadcast delivers event to every member of the group for code except
// exclude (pass "" to reach everyone). It returns the number of members the
// event was handed to.
func (b *Broadcaster) Broadcast(code, event string, data any, exclude string) int {
	env, err := NewEnvelope(event, data)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("dropping broadcast")
		return 0
	}

	// Deliver never blocks; delivering under the read lock orders every
	// broadcast against Dissolve.
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for connID := range b.groups[code] {
		if connID == exclude {
			continue
		}
		if err := b.deliverer.Deliver(connID, env); err != nil {
			log.Warn().Err(err).Str("code", code).Str("conn", connID).Str("event", event).Msg("delivery failed")
			continue
		}
		delivered++
	}
	return delivered
}

// SendTo delivers event directly to one connection
func (b *Broadcaster) SendTo(connID, event string, data any) error {
	env, err := NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return b.deliverer.Deliver(connID, env)
}

// GroupCount returns the number of live broadcast groups
func (b *Broadcaster) GroupCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups)
}

func sortedMembers(members map[string]struct{}) []string {
	result := make([]string, 0, len(members))
	for connID := range members {
		result = append(result, connID)
	}
	sort.Strings(result)
	return result
}
