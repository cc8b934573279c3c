package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"minirc/internal/pkg/channel"
	"minirc/internal/pkg/log"
	"minirc/internal/pkg/metrics"
	"minirc/internal/pkg/session"
	"minirc/internal/pkg/wire"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// DefaultPort is the TCP port the server listens on unless configured.
const DefaultPort = 6665

// Server owns the directory (nick, user and channel indexes) and runs one
// connection loop per accepted client. Sessions are owned by their
// connection loop; the directory only holds references that the loop
// removes on teardown.
type Server struct {
	name             string
	port             uint16
	broadcastTimeout time.Duration
	collector        *metrics.Collector

	handlers map[string]handlerFunc

	mu       sync.RWMutex
	nicks    map[string]*session.Session
	users    map[string]*session.Session
	channels map[string]*channel.Channel
	sessions map[*session.Session]struct{}

	lnMu sync.Mutex
	ln   net.Listener
}

// Cfg configures a Server.
type Cfg func(*Server) error

// WithPort sets the TCP port to listen on. Port 0 binds an ephemeral port.
func WithPort(p uint16) Cfg {
	return func(s *Server) error {
		s.port = p
		return nil
	}
}

// WithServerName sets the identity used for server-prefixed replies.
func WithServerName(name string) Cfg {
	return func(s *Server) error {
		if name == "" {
			return errors.New("server name must not be empty")
		}
		s.name = name
		return nil
	}
}

// WithBroadcastTimeout bounds every channel fan-out.
func WithBroadcastTimeout(d time.Duration) Cfg {
	return func(s *Server) error {
		if d <= 0 {
			return errors.New("broadcast timeout must be positive")
		}
		s.broadcastTimeout = d
		return nil
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Cfg {
	return func(s *Server) error {
		s.collector = c
		return nil
	}
}

// NewServer creates a Server with the given configuration. The command
// dispatch table is built and validated here rather than per-call.
func NewServer(cfgs ...Cfg) (*Server, error) {
	s := &Server{
		name:             "minirc.local",
		port:             DefaultPort,
		broadcastTimeout: channel.DefaultBroadcastTimeout,
		nicks:            make(map[string]*session.Session),
		users:            make(map[string]*session.Session),
		channels:         make(map[string]*channel.Channel),
		sessions:         make(map[*session.Session]struct{}),
	}
	for _, cfg := range cfgs {
		if err := cfg(s); err != nil {
			return nil, errors.Wrap(err, "apply Server cfg failed")
		}
	}
	handlers, err := s.newDispatchTable()
	if err != nil {
		return nil, errors.Wrap(err, "build dispatch table failed")
	}
	s.handlers = handlers
	return s, nil
}

// ListenAndServe accepts connections until ctx is cancelled. Each accepted
// connection runs its own loop; a failing client never takes down the
// server or its peers.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.Wrapf(err, "listen on port %d failed", s.port)
	}
	s.lnMu.Lock()
	s.ln = ln
	s.lnMu.Unlock()
	logger.WithField("addr", ln.Addr().String()).Info("server listening")

	go func() {
		<-ctx.Done()
		if err := ln.Close(); err != nil {
			logger.WithError(err).Debug("close listener failed")
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept connection failed")
		}
		go s.ServeConn(ctx, session.NewTCPConn(conn))
	}
}

// Addr returns the bound listener address, or nil before ListenAndServe.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ServeConn runs the per-connection loop over an established transport.
// The WebSocket gateway feeds upgraded connections through here as well.
func (s *Server) ServeConn(ctx context.Context, conn session.Conn) {
	sess, err := session.NewSession(conn, session.WithServerName(s.name))
	if err != nil {
		logger.WithError(err).Error("create session failed")
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	s.collector.ConnectionOpened()
	logger.WithField("addr", sess.RemoteAddr()).Info("connection established")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Close()
		case <-done:
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("addr", sess.RemoteAddr()).Errorf("connection loop panic: %v", r)
		}
		s.unregister(sess, "connection closed")
	}()

	for {
		raw, err := sess.Recv()
		if err != nil {
			logger.WithField("addr", sess.RemoteAddr()).WithError(err).Debug("client disconnected")
			return
		}
		s.collector.FrameReceived()

		frame, err := wire.Decode(raw)
		if err != nil {
			s.collector.FrameDropped()
			logger.WithField("addr", sess.RemoteAddr()).WithError(err).Debug("dropped malformed frame")
			continue
		}
		// Well-behaved clients never set a prefix; prefixed relays are
		// not supported.
		if frame.Prefix != "" {
			continue
		}

		handle, ok := s.handlers[strings.ToUpper(frame.Command)]
		if !ok {
			logger.WithFields(log.FrameToFields(frame)).Debug("ignoring unknown command")
			continue
		}
		if err := handle(sess, frame.Params); err != nil {
			if errors.Is(err, errQuit) {
				return
			}
			logger.WithFields(log.FrameToFields(frame)).WithError(err).Warn("handle command failed")
		}
	}
}

// unregister removes the session from every directory and channel index,
// broadcasts its departure and closes the transport. Safe to call more
// than once per session; only the first call acts.
func (s *Server) unregister(sess *session.Session, quitMsg string) {
	s.mu.Lock()
	if _, live := s.sessions[sess]; !live {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sess)
	if nick := sess.Nick(); nick != "" && s.nicks[nick] == sess {
		delete(s.nicks, nick)
	}
	if username := sess.Username(); username != "" && s.users[username] == sess {
		delete(s.users, username)
	}
	var joined []*channel.Channel
	for _, ch := range s.channels {
		if ch.Has(sess) {
			joined = append(joined, ch)
		}
	}
	s.mu.Unlock()

	notice := wire.Encode(sess.Prefix(), "QUIT", quitMsg)
	for _, ch := range joined {
		ch.Remove(sess)
		s.collector.BroadcastAttempted(ch.Broadcast(notice, sess))
	}

	if err := sess.Close(); err != nil {
		logger.WithField("addr", sess.RemoteAddr()).WithError(err).Debug("close session failed")
	}
	s.collector.ConnectionClosed()
	logger.WithField("addr", sess.RemoteAddr()).Info("connection closed")
}

// bindNick rebinds the session's nick, dropping any prior binding for its
// old nick first. A nick held by another live session is rejected.
func (s *Server) bindNick(sess *session.Session, nick string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.nicks[nick]; ok && held != sess {
		return ErrNickInUse
	}
	if old := sess.Nick(); old != "" && s.nicks[old] == sess {
		delete(s.nicks, old)
	}
	s.nicks[nick] = sess
	sess.SetNick(nick)
	return nil
}

func (s *Server) bindUser(sess *session.Session, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = sess
}

func (s *Server) getOrCreateChannel(name string) *channel.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[name]; ok {
		return ch
	}
	ch := channel.New(name, channel.WithBroadcastTimeout(s.broadcastTimeout))
	s.channels[name] = ch
	return ch
}

func (s *Server) lookupChannel(name string) *channel.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[name]
}

// lookupPeer resolves a direct-message target, by nick first and then by
// registered username.
func (s *Server) lookupPeer(target string) *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if peer, ok := s.nicks[target]; ok {
		return peer
	}
	return s.users[target]
}

// channelsOf returns every channel the session is currently a member of.
func (s *Server) channelsOf(sess *session.Session) []*channel.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var joined []*channel.Channel
	for _, ch := range s.channels {
		if ch.Has(sess) {
			joined = append(joined, ch)
		}
	}
	return joined
}

// listChannels resolves the LIST filter to known channels; an empty filter
// means all of them.
func (s *Server) listChannels(filter []string) []*channel.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(filter) == 0 {
		out := make([]*channel.Channel, 0, len(s.channels))
		for _, ch := range s.channels {
			out = append(out, ch)
		}
		return out
	}
	var out []*channel.Channel
	for _, name := range filter {
		if ch, ok := s.channels[name]; ok {
			out = append(out, ch)
		}
	}
	return out
}
