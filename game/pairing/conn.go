package pairing

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wricardo/tiltlink/game/session"
)

// State is the position of a connection in the pairing lifecycle
type State int

const (
	Unbound State = iota
	Hosting
	Joined
	Closed
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Hosting:
		return "hosting"
	case Joined:
		return "joined"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the pairing state of one client connection. It is driven by a
// single goroutine (the connection's read loop) and is not safe for
// concurrent use.
type Conn struct {
	id       string
	svc      *Service
	state    State
	code     string
	lastMove time.Time
	logger   zerolog.Logger
}

func newConn(svc *Service, id string) *Conn {
	return &Conn{
		id:     id,
		svc:    svc,
		state:  Unbound,
		logger: log.With().Str("conn", id).Logger(),
	}
}

// ID returns the transport connection id
func (c *Conn) ID() string { return c.id }

// State returns the current state
func (c *Conn) State() State { return c.state }

// Code returns the session code the connection is bound to, if any
func (c *Conn) Code() string { return c.code }

// HandleEvent applies one inbound client event
func (c *Conn) HandleEvent(event string, data json.RawMessage) {
	c.checkBinding()

	switch event {
	case EventJoinDesktop:
		c.handleJoinDesktop()
	case EventJoinMobile:
		c.handleJoinMobile(data)
	case EventMoveMobile:
		c.handleMoveMobile(data)
	default:
		c.logger.Debug().Str("event", event).Msg("ignoring unknown event")
	}
}

// Disconnect tears down the connection's session, if any, and closes it
func (c *Conn) Disconnect() {
	switch c.state {
	case Hosting, Joined:
		c.svc.leave(c.code, c.id)
	case Closed:
		return
	}
	c.state = Closed
}

func (c *Conn) handleJoinDesktop() {
	if c.state != Unbound {
		c.ignore(EventJoinDesktop)
		return
	}

	c.code = c.svc.host(c.id)
	c.state = Hosting
}

func (c *Conn) handleJoinMobile(data json.RawMessage) {
	if c.state != Unbound {
		c.ignore(EventJoinMobile)
		return
	}

	code, ok := decodeCode(data)
	if !ok {
		c.svc.sendError(c.id, ReasonNoGame)
		return
	}

	switch c.svc.join(code, c.id) {
	case session.Joined:
		c.code = code
		c.state = Joined
	case session.NotFound:
		c.svc.sendError(c.id, ReasonNoGame)
	case session.AlreadyFull:
		c.svc.sendError(c.id, ReasonAlreadyFull)
	}
}

func (c *Conn) handleMoveMobile(data json.RawMessage) {
	if c.state != Hosting && c.state != Joined {
		c.ignore(EventMoveMobile)
		return
	}

	now := time.Now()
	var since time.Duration
	if !c.lastMove.IsZero() {
		since = now.Sub(c.lastMove)
	}
	c.lastMove = now

	delivered := c.svc.relayMove(c.code, c.id, data)
	c.logger.Debug().
		Str("code", c.code).
		Dur("since_last", since).
		Int("delivered", delivered).
		Msg("move")
}

// checkBinding closes a bound connection whose session was ended by the
// other side or replaced after a code collision.
func (c *Conn) checkBinding() {
	if c.state != Hosting && c.state != Joined {
		return
	}
	if c.svc.bound(c.code, c.id) {
		return
	}
	c.logger.Debug().Str("code", c.code).Msg("session gone, closing")
	c.state = Closed
}

func (c *Conn) ignore(event string) {
	c.logger.Debug().Str("event", event).Stringer("state", c.state).Msg("ignoring event")
}

// decodeCode extracts a session code from a join-mobile payload. Codes are
// matched case-insensitively.
func decodeCode(data json.RawMessage) (string, bool) {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return "", false
	}
	code = strings.ToLower(strings.TrimSpace(code))
	return code, code != ""
}
