package session

import (
	"fmt"
	"sync"

	"minirc/internal/pkg/wire"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PrefixMode selects the prefix attached to an outbound reply.
type PrefixMode int

const (
	// PrefixNone emits the reply without a prefix.
	PrefixNone PrefixMode = iota
	// PrefixServer prefixes the reply with the server identity.
	PrefixServer
	// PrefixSelf prefixes the reply with the session's own nick!user@addr.
	PrefixSelf
)

// Session is one connected endpoint's protocol identity. It owns its
// transport; the Directory and Channels only hold non-owning references
// that the connection loop removes on teardown.
type Session struct {
	ID uuid.UUID

	conn       Conn
	serverName string
	remoteAddr string

	mu         sync.Mutex
	nick       string
	username   string
	realname   string
	mode       int
	registered bool

	writeMu sync.Mutex
}

// Cfg configures a Session.
type Cfg func(*Session) error

// WithServerName sets the identity used for server-prefixed replies.
func WithServerName(name string) Cfg {
	return func(s *Session) error {
		s.serverName = name
		return nil
	}
}

// NewSession creates a Session owning the given transport.
func NewSession(conn Conn, cfgs ...Cfg) (*Session, error) {
	s := &Session{
		ID:         uuid.New(),
		conn:       conn,
		remoteAddr: conn.RemoteAddr(),
	}
	for _, cfg := range cfgs {
		if err := cfg(s); err != nil {
			return nil, errors.Wrap(err, "apply Session cfg failed")
		}
	}
	return s, nil
}

// Recv blocks until one full raw frame is available. Any error is fatal
// to the owning connection loop.
func (s *Session) Recv() ([]byte, error) {
	raw, err := s.conn.ReadFrame()
	if err != nil {
		return nil, errors.Wrap(err, "read frame failed")
	}
	return raw, nil
}

// Send writes one raw frame to the transport. Sends are serialized so
// that concurrent broadcasts never interleave partial frames.
func (s *Session) Send(raw []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return errors.Wrap(s.conn.WriteFrame(raw), "write frame failed")
}

// Reply resolves kind against the numeric table and sends it with the
// requested prefix. The recipient slot carries the session's nick, or "*"
// before one is bound.
func (s *Session) Reply(mode PrefixMode, kind wire.ReplyKind, args ...string) error {
	recipient := s.Nick()
	if recipient == "" {
		recipient = "*"
	}
	raw, err := wire.Reply(s.resolvePrefix(mode), kind, recipient, args...)
	if err != nil {
		return errors.Wrap(err, "build reply failed")
	}
	return errors.Wrap(s.Send(raw), "send reply failed")
}

func (s *Session) resolvePrefix(mode PrefixMode) string {
	switch mode {
	case PrefixServer:
		return s.serverName
	case PrefixSelf:
		return s.Prefix()
	default:
		return ""
	}
}

// Close shuts down the transport.
func (s *Session) Close() error {
	return s.conn.Close()
}

// SetNick (re)binds the session's nick. Accepted in any registration
// state; uniqueness against other sessions is the Directory's concern.
func (s *Session) SetNick(nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nick = nick
}

// Register performs the USER transition. The registered flag is monotonic:
// a second USER fails with ErrAlreadyRegistered and changes nothing.
func (s *Session) Register(username string, mode int, realname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registered {
		return ErrAlreadyRegistered
	}
	s.username = username
	s.mode = mode
	s.realname = realname
	s.registered = true
	return nil
}

// Nick returns the currently bound nick, or "".
func (s *Session) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

// Username returns the username bound at registration.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Realname returns the realname bound at registration.
func (s *Session) Realname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realname
}

// Mode returns the best-effort parsed mode bitfield.
func (s *Session) Mode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Registered reports whether the USER transition has completed.
func (s *Session) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

// RemoteAddr returns the transport address captured at creation.
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// Prefix returns the session's IRC-style identity, nick!username@address.
func (s *Session) Prefix() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s!%s@%s", s.nick, s.username, s.remoteAddr)
}
