package session

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidCode     = errors.New("invalid session code")
)

// JoinResult is the outcome of a join request.
type JoinResult int

const (
	// Joined means the peer was attached to the session.
	Joined JoinResult = iota
	// NotFound means no session exists under the code.
	NotFound
	// AlreadyFull means the session already has a peer.
	AlreadyFull
)

func (r JoinResult) String() string {
	switch r {
	case Joined:
		return "joined"
	case NotFound:
		return "not_found"
	case AlreadyFull:
		return "already_full"
	default:
		return "unknown"
	}
}

// Session represents one desktop/mobile pairing
type Session struct {
	Code      string    `json:"code"`
	HostID    string    `json:"host_id"`
	PeerID    string    `json:"peer_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	JoinedAt  time.Time `json:"joined_at,omitempty"`
}

// Paired reports whether a peer has joined the session.
func (s Session) Paired() bool {
	return s.PeerID != ""
}

// HasMember reports whether connID is the host or the peer of the session.
func (s Session) HasMember(connID string) bool {
	return connID != "" && (s.HostID == connID || s.PeerID == connID)
}

// Manager handles session lifecycle
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time
}

// NewManager creates a new session manager
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create stores a fresh session for code with hostID as its host and no peer.
// Any session already stored under code is replaced and returned so the
// caller can log the collision; its members are not notified.
func (m *Manager) Create(code, hostID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	replaced := m.sessions[code]

	m.sessions[code] = &Session{
		Code:      code,
		HostID:    hostID,
		CreatedAt: m.now(),
	}

	if replaced == nil {
		return nil
	}
	prev := *replaced
	return &prev
}

// Join attaches peerID to the session under code if it has no peer yet.
func (m *Manager) Join(code, peerID string) JoinResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[code]
	if !exists {
		return NotFound
	}
	if session.Paired() {
		return AlreadyFull
	}

	session.PeerID = peerID
	session.JoinedAt = m.now()
	return Joined
}

// Teardown removes the session under code. It reports whether a session
// was present; tearing down an unknown code is a no-op.
func (m *Manager) Teardown(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[code]; !exists {
		return false
	}
	delete(m.sessions, code)
	return true
}

// Release tears down the session under code only if connID is still its
// host or peer. A host orphaned by a code collision therefore cannot end the
// session that replaced its own.
func (m *Manager) Release(code, connID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[code]
	if !exists || !session.HasMember(connID) {
		return Session{}, false
	}
	delete(m.sessions, code)
	return *session, true
}

// Get returns a snapshot of the session under code
func (m *Manager) Get(code string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[code]
	if !exists {
		return Session{}, ErrSessionNotFound
	}
	return *session, nil
}

// List returns snapshots of all active sessions, oldest first
func (m *Manager) List() []Session {
	m.mu.RLock()
	result := make([]Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, *session)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Code < result[j].Code
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Count returns the number of active sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ValidateCode checks that code has the shape GenerateCode produces.
func ValidateCode(code string) error {
	if len(code) != CodeLength {
		return ErrInvalidCode
	}
	for _, c := range code {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return ErrInvalidCode
		}
	}
	return nil
}
