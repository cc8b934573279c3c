package server

import (
	"strconv"
	"strings"

	"minirc/internal/pkg/channel"
	"minirc/internal/pkg/session"
	"minirc/internal/pkg/wire"

	"github.com/pkg/errors"
)

// handlerFunc is the uniform command handler signature. Returned errors
// are logged by the connection loop; only errQuit ends it.
type handlerFunc func(sess *session.Session, params []string) error

// newDispatchTable builds the command table and validates every entry up
// front, so a bad registration fails at construction instead of per-call.
func (s *Server) newDispatchTable() (map[string]handlerFunc, error) {
	table := map[string]handlerFunc{
		"NICK":    s.handleNick,
		"USER":    s.handleUser,
		"QUIT":    s.handleQuit,
		"JOIN":    s.handleJoin,
		"PART":    s.handlePart,
		"LIST":    s.handleList,
		"PRIVMSG": s.handlePrivmsg,
	}
	for name, handle := range table {
		if name == "" || name != strings.ToUpper(name) {
			return nil, errors.Errorf("command name %q must be uppercase", name)
		}
		if handle == nil {
			return nil, errors.Errorf("command %s has no handler", name)
		}
	}
	return table, nil
}

func (s *Server) handleNick(sess *session.Session, params []string) error {
	if len(params) < 1 {
		return sess.Reply(session.PrefixServer, wire.ReplyNeedMoreParams, "NICK")
	}
	nick := params[0]
	if err := s.bindNick(sess, nick); err != nil {
		if errors.Is(err, ErrNickInUse) {
			return sess.Reply(session.PrefixServer, wire.ReplyNicknameInUse, nick)
		}
		return errors.Wrap(err, "bind nick failed")
	}
	return nil
}

func (s *Server) handleUser(sess *session.Session, params []string) error {
	if len(params) < 4 {
		return sess.Reply(session.PrefixServer, wire.ReplyNeedMoreParams, "USER")
	}
	username := params[0]
	mode, _ := strconv.Atoi(params[1]) // best-effort; malformed mode reads as 0
	realname := params[3]

	if err := sess.Register(username, mode, realname); err != nil {
		if errors.Is(err, session.ErrAlreadyRegistered) {
			return sess.Reply(session.PrefixServer, wire.ReplyAlreadyRegistered)
		}
		return errors.Wrap(err, "register session failed")
	}
	s.bindUser(sess, username)
	return sess.Reply(session.PrefixServer, wire.ReplyWelcome, "Welcome "+username)
}

func (s *Server) handleQuit(sess *session.Session, params []string) error {
	var msg string
	if len(params) > 0 {
		msg = params[0]
	}
	s.unregister(sess, msg)
	return errQuit
}

func (s *Server) handleJoin(sess *session.Session, params []string) error {
	if len(params) < 1 {
		return sess.Reply(session.PrefixServer, wire.ReplyNeedMoreParams, "JOIN")
	}
	// JOIN 0 means leave every joined channel.
	if params[0] == "0" {
		for _, ch := range s.channelsOf(sess) {
			s.partChannel(sess, ch)
		}
		return nil
	}
	for _, name := range strings.Split(params[0], ",") {
		if name == "" {
			continue
		}
		ch := s.getOrCreateChannel(name)
		ch.Add(sess)

		// The join notice goes to the new membership, joiner included.
		notice := wire.Encode(sess.Prefix(), "JOIN", name)
		s.collector.BroadcastAttempted(ch.Broadcast(notice, nil))

		if err := sess.Reply(session.PrefixServer, wire.ReplyNoTopic, name); err != nil {
			return errors.Wrap(err, "send NOTOPIC failed")
		}
		if err := sess.Reply(session.PrefixServer, wire.ReplyNamReply, "=", name, strings.Join(ch.Nicks(), " ")); err != nil {
			return errors.Wrap(err, "send NAMREPLY failed")
		}
		if err := sess.Reply(session.PrefixServer, wire.ReplyEndOfNames, name); err != nil {
			return errors.Wrap(err, "send ENDOFNAMES failed")
		}
	}
	return nil
}

func (s *Server) handlePart(sess *session.Session, params []string) error {
	if len(params) < 1 {
		return sess.Reply(session.PrefixServer, wire.ReplyNeedMoreParams, "PART")
	}
	for _, name := range strings.Split(params[0], ",") {
		ch := s.lookupChannel(name)
		if ch == nil || !ch.Has(sess) {
			// Not joined: silently no-op.
			continue
		}
		s.partChannel(sess, ch)
	}
	return nil
}

// partChannel announces the departure to the whole membership, leaver
// included, then removes the member.
func (s *Server) partChannel(sess *session.Session, ch *channel.Channel) {
	notice := wire.Encode(sess.Prefix(), "PART", ch.Name)
	s.collector.BroadcastAttempted(ch.Broadcast(notice, nil))
	ch.Remove(sess)
}

func (s *Server) handleList(sess *session.Session, params []string) error {
	var filter []string
	if len(params) > 0 && params[0] != "" {
		filter = strings.Split(params[0], ",")
	}
	for _, ch := range s.listChannels(filter) {
		if err := sess.Reply(session.PrefixServer, wire.ReplyList, ch.Name, strconv.Itoa(ch.Len()), ch.Topic()); err != nil {
			return errors.Wrap(err, "send LIST reply failed")
		}
	}
	return sess.Reply(session.PrefixServer, wire.ReplyListEnd)
}

func (s *Server) handlePrivmsg(sess *session.Session, params []string) error {
	if len(params) < 2 {
		return sess.Reply(session.PrefixServer, wire.ReplyNeedMoreParams, "PRIVMSG")
	}
	target, text := params[0], params[1]
	raw := wire.Encode(sess.Prefix(), "PRIVMSG", target, text)

	if isChannelName(target) {
		ch := s.lookupChannel(target)
		if ch == nil {
			return sess.Reply(session.PrefixServer, wire.ReplyNoSuchNick, target)
		}
		s.collector.BroadcastAttempted(ch.Broadcast(raw, sess))
		return nil
	}

	peer := s.lookupPeer(target)
	if peer == nil {
		return sess.Reply(session.PrefixServer, wire.ReplyNoSuchNick, target)
	}
	return errors.Wrap(peer.Send(raw), "forward direct message failed")
}

func isChannelName(target string) bool {
	if target == "" {
		return false
	}
	switch target[0] {
	case '#', '&', '+':
		return true
	default:
		return false
	}
}
