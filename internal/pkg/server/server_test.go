package server

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptConn is an in-memory session transport: reads are fed through a
// channel and writes are recorded.
type scriptConn struct {
	addr string

	mu    sync.Mutex
	wrote []string

	reads chan []byte
	once  sync.Once
}

func newScriptConn(addr string) *scriptConn {
	return &scriptConn{addr: addr, reads: make(chan []byte, 32)}
}

func (c *scriptConn) ReadFrame() ([]byte, error) {
	raw, ok := <-c.reads
	if !ok {
		return nil, io.EOF
	}
	return raw, nil
}

func (c *scriptConn) WriteFrame(raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wrote = append(c.wrote, string(raw))
	return nil
}

func (c *scriptConn) RemoteAddr() string { return c.addr }

func (c *scriptConn) Close() error {
	c.once.Do(func() { close(c.reads) })
	return nil
}

func (c *scriptConn) send(line string) {
	c.reads <- []byte(line + "\r\n")
}

func (c *scriptConn) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.wrote...)
}

func (c *scriptConn) waitFor(t *testing.T, substr string) string {
	t.Helper()
	var match string
	require.Eventually(t, func() bool {
		for _, line := range c.sent() {
			if strings.Contains(line, substr) {
				match = line
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no frame containing %q, got %v", substr, c.sent())
	return match
}

func (c *scriptConn) neverReceives(t *testing.T, substr string) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	for _, line := range c.sent() {
		require.NotContains(t, line, substr)
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(
		WithServerName("test.local"),
		WithBroadcastTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)
	return s
}

var connSeq int

func connect(t *testing.T, s *Server) *scriptConn {
	t.Helper()
	connSeq++
	conn := newScriptConn(fmt.Sprintf("127.0.0.1:%d", 50000+connSeq))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ServeConn(ctx, conn)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return conn
}

func register(t *testing.T, conn *scriptConn, nick string) {
	t.Helper()
	conn.send("NICK " + nick)
	conn.send(fmt.Sprintf("USER %su 0 * :%s User", nick, nick))
	conn.waitFor(t, " 001 ")
}

func TestRegistrationWelcome(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)

	conn.send("NICK alice")
	conn.send("USER auser 0 * :Alice A.")
	require.Equal(t, ":test.local 001 alice :Welcome auser\r\n", conn.waitFor(t, " 001 "))
}

func TestUserTwiceYieldsAlreadyRegistered(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)
	register(t, conn, "alice")

	conn.send("USER other 0 * :Other Name")
	require.Equal(t, ":test.local 462 alice :You may not reregister\r\n", conn.waitFor(t, " 462 "))
}

func TestUserNeedsFourParams(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)
	conn.send("NICK alice")
	conn.send("USER auser 0")
	conn.waitFor(t, " 461 alice USER ")
}

func TestNickNeedsParam(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)
	conn.send("NICK")
	conn.waitFor(t, " 461 * NICK ")
}

func TestNickCollisionRejected(t *testing.T) {
	s := newTestServer(t)
	a := connect(t, s)
	b := connect(t, s)
	register(t, a, "alice")

	b.send("NICK alice")
	b.waitFor(t, " 433 * alice ")
}

func TestNickRebindFreesOldNick(t *testing.T) {
	s := newTestServer(t)
	a := connect(t, s)
	b := connect(t, s)
	register(t, a, "alice")

	a.send("NICK alice2")
	a.send("JOIN #sync") // rebind emits nothing; the join echo proves it landed
	a.waitFor(t, ":alice2!")

	b.send("NICK alice")
	b.neverReceives(t, " 433 ")
}

func TestJoinRepliesAndBroadcast(t *testing.T) {
	s := newTestServer(t)
	a := connect(t, s)
	b := connect(t, s)
	register(t, a, "alice")
	register(t, b, "bob")

	a.send("JOIN #t")
	a.waitFor(t, "JOIN #t")
	a.waitFor(t, " 331 alice #t ")
	a.waitFor(t, " 353 alice = #t ")
	a.waitFor(t, " 366 alice #t ")

	b.send("JOIN #t")
	// Existing members see the newcomer's join.
	a.waitFor(t, ":bob!bobu@")
	names := b.waitFor(t, " 353 bob = #t ")
	require.Contains(t, names, "alice")
	require.Contains(t, names, "bob")
}

func TestJoinMissingParam(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)
	register(t, conn, "alice")
	conn.send("JOIN")
	conn.waitFor(t, " 461 alice JOIN ")
}

func TestPrivmsgChannelExcludesSender(t *testing.T) {
	s := newTestServer(t)
	a := connect(t, s)
	b := connect(t, s)
	register(t, a, "alice")
	register(t, b, "bob")
	a.send("JOIN #t")
	b.send("JOIN #t")
	b.waitFor(t, " 366 bob #t ")

	a.send("PRIVMSG #t :hello world")
	require.Contains(t, b.waitFor(t, "PRIVMSG #t :hello world"), ":alice!")
	a.neverReceives(t, "hello world")
}

func TestPrivmsgUnknownChannel(t *testing.T) {
	s := newTestServer(t)
	a := connect(t, s)
	b := connect(t, s)
	register(t, a, "alice")
	register(t, b, "bob")
	b.send("JOIN #t")
	b.waitFor(t, " 366 bob #t ")

	a.send("PRIVMSG #nowhere :hi there")
	a.waitFor(t, " 401 alice #nowhere ")
	b.neverReceives(t, "hi there")
}

func TestPrivmsgDirectByNickAndUsername(t *testing.T) {
	s := newTestServer(t)
	a := connect(t, s)
	b := connect(t, s)
	register(t, a, "alice")
	register(t, b, "bob")

	a.send("PRIVMSG bob :hi bob")
	require.Contains(t, b.waitFor(t, "PRIVMSG bob :hi bob"), ":alice!")

	a.send("PRIVMSG bobu :hi again")
	b.waitFor(t, "PRIVMSG bobu :hi again")

	a.send("PRIVMSG nobody :anyone home")
	a.waitFor(t, " 401 alice nobody ")
}

func TestPrivmsgNeedsTwoParams(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)
	register(t, conn, "alice")
	conn.send("PRIVMSG #t")
	conn.waitFor(t, " 461 alice PRIVMSG ")
}

func TestPartBroadcastsAndPrunes(t *testing.T) {
	s := newTestServer(t)
	a := connect(t, s)
	b := connect(t, s)
	register(t, a, "alice")
	register(t, b, "bob")
	a.send("JOIN #t")
	b.send("JOIN #t")
	b.waitFor(t, " 366 bob #t ")

	a.send("PART #t")
	b.waitFor(t, "PART #t")
	require.Eventually(t, func() bool {
		ch := s.lookupChannel("#t")
		return ch != nil && ch.Len() == 1
	}, time.Second, 5*time.Millisecond)

	// Parting again is a silent no-op.
	a.send("PART #t,#unknown")
	a.neverReceives(t, " 401 ")
}

func TestJoinZeroLeavesEverything(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)
	register(t, conn, "alice")
	conn.send("JOIN #a,#b")
	conn.waitFor(t, " 366 alice #b ")

	conn.send("JOIN 0")
	require.Eventually(t, func() bool {
		return s.lookupChannel("#a").Len() == 0 && s.lookupChannel("#b").Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestListFiltersAndListEnd(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)
	register(t, conn, "alice")
	conn.send("JOIN #a,#b")
	conn.waitFor(t, " 366 alice #b ")

	conn.send("LIST #a")
	conn.waitFor(t, " 322 alice #a 1")
	conn.waitFor(t, " 323 alice ")
	conn.neverReceives(t, " 322 alice #b")

	conn.send("LIST")
	conn.waitFor(t, " 322 alice #b 1")
}

func TestQuitBroadcastsToPeers(t *testing.T) {
	s := newTestServer(t)
	a := connect(t, s)
	b := connect(t, s)
	register(t, a, "alice")
	register(t, b, "bob")
	a.send("JOIN #t")
	b.send("JOIN #t")
	b.waitFor(t, " 366 bob #t ")

	a.send("QUIT :bye all")
	require.Contains(t, b.waitFor(t, "QUIT :bye all"), ":alice!")
	require.Eventually(t, func() bool {
		return s.lookupChannel("#t").Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAbruptDisconnectPrunesMembership(t *testing.T) {
	s := newTestServer(t)
	a := connect(t, s)
	b := connect(t, s)
	register(t, a, "alice")
	register(t, b, "bob")
	a.send("JOIN #t")
	b.send("JOIN #t")
	b.waitFor(t, " 366 bob #t ")

	require.NoError(t, a.Close())
	b.waitFor(t, "QUIT")
	require.Eventually(t, func() bool {
		return s.lookupChannel("#t").Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMalformedAndPrefixedFramesAreDropped(t *testing.T) {
	s := newTestServer(t)
	conn := connect(t, s)

	conn.reads <- []byte("NICK  alice\r\n") // double space: malformed
	conn.send(":evil!u@h NICK mallory")     // prefixed: discarded
	conn.send("WHOIS alice")                // unknown command: ignored

	// The connection survives all three and still registers normally.
	register(t, conn, "alice")
}

func TestDispatchTableValidation(t *testing.T) {
	s := newTestServer(t)
	for name := range s.handlers {
		require.Equal(t, strings.ToUpper(name), name)
	}
	require.Len(t, s.handlers, 7)
}
