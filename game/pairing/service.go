package pairing

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wricardo/tiltlink/game/relay"
	"github.com/wricardo/tiltlink/game/session"
)

// Service pairs connections into sessions and relays their events
type Service struct {
	sessions *session.Manager
	relay    *relay.Broadcaster
	generate session.CodeGenerator

	// mu serializes membership changes across the registry and the
	// broadcast groups. The move relay path never takes it.
	mu sync.Mutex
}

// Option configures a Service
type Option func(*Service)

// WithCodeGenerator replaces the default random code generator
func WithCodeGenerator(gen session.CodeGenerator) Option {
	return func(s *Service) {
		s.generate = gen
	}
}

// NewService creates a pairing service over the given registry and broadcaster
func NewService(sessions *session.Manager, broadcaster *relay.Broadcaster, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		relay:    broadcaster,
		generate: session.GenerateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect creates the state machine for a newly accepted connection
func (s *Service) Connect(connID string) *Conn {
	return newConn(s, connID)
}

// Sessions returns the underlying registry for read-only inspection
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// host creates a session hosted by connID and returns its code
func (s *Service) host(connID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := s.generate()
	if replaced := s.sessions.Create(code, connID); replaced != nil {
		// The previous members keep their local state but lose the group;
		// they find out the next time they send something.
		orphans := s.relay.Dissolve(code)
		log.Warn().
			Str("code", code).
			Str("orphaned_host", replaced.HostID).
			Strs("orphaned_members", orphans).
			Msg("session code collision, replacing session")
	}

	s.relay.Join(code, connID)
	if err := s.relay.SendTo(connID, EventGameCode, code); err != nil {
		log.Warn().Err(err).Str("code", code).Str("conn", connID).Msg("failed to send game code")
	}

	log.Info().Str("code", code).Str("conn", connID).Msg("starting game")
	return code
}

// join attaches connID to the session under code and starts the game
func (s *Service) join(code, connID string) session.JoinResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.sessions.Join(code, connID)
	if result != session.Joined {
		return result
	}

	s.relay.Join(code, connID)
	s.relay.Broadcast(code, EventGameStart, code, "")

	log.Info().Str("code", code).Str("conn", connID).Msg("game ready")
	return result
}

// leave ends the session under code if connID still belongs to it
func (s *Service) leave(code, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions.Release(code, connID); !ok {
		s.relay.Leave(code, connID)
		return false
	}

	notified := s.relay.Broadcast(code, EventGameOver, nil, connID)
	s.relay.Dissolve(code)

	log.Info().Str("code", code).Str("conn", connID).Int("notified", notified).Msg("game ending")
	return true
}

// relayMove forwards a motion delta to the other members of code
func (s *Service) relayMove(code, connID string, delta json.RawMessage) int {
	return s.relay.Broadcast(code, EventMoveDesktop, delta, connID)
}

// bound reports whether connID is still in the broadcast group for code
func (s *Service) bound(code, connID string) bool {
	return s.relay.IsMember(code, connID)
}

func (s *Service) sendError(connID, reason string) {
	if err := s.relay.SendTo(connID, EventGameError, reason); err != nil {
		log.Warn().Err(err).Str("conn", connID).Msg("failed to send game error")
	}
}
