package client

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu    sync.Mutex
	wrote []string

	reads chan []byte
	once  sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan []byte, 32)}
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	raw, ok := <-c.reads
	if !ok {
		return nil, io.EOF
	}
	return raw, nil
}

func (c *fakeConn) WriteFrame(raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wrote = append(c.wrote, string(raw))
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "127.0.0.1:6665" }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.reads) })
	return nil
}

func (c *fakeConn) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.wrote...)
}

func (c *fakeConn) waitSent(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.sent()) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return c.sent()
}

func runClient(t *testing.T, c *Client, conn *fakeConn) context.CancelFunc {
	t.Helper()
	c.conn = conn
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, c.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestHandshakeOrderAfterNickGate(t *testing.T) {
	c, err := NewClient(WithChannel("#t"), WithUser("auser", "Alice A."))
	require.NoError(t, err)
	conn := newFakeConn()
	runClient(t, c, conn)

	// Nothing goes out before the gate fires.
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, conn.sent())

	c.ChooseNick("alice")
	require.Equal(t, []string{
		"NICK alice\r\n",
		"USER auser 0 * :Alice A.\r\n",
		"JOIN #t\r\n",
	}, conn.waitSent(t, 3))
}

func TestChooseNickIsOneShot(t *testing.T) {
	c, err := NewClient(WithChannel("#t"))
	require.NoError(t, err)
	conn := newFakeConn()
	runClient(t, c, conn)

	c.ChooseNick("alice")
	c.ChooseNick("mallory")
	require.Equal(t, "NICK alice\r\n", conn.waitSent(t, 3)[0])
}

func TestOutboundDrainPreservesFIFO(t *testing.T) {
	c, err := NewClient(WithChannel("#t"))
	require.NoError(t, err)
	conn := newFakeConn()

	// Queue before the drain starts; order must survive.
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Send(fmt.Sprintf("line %d", i)))
	}
	runClient(t, c, conn)
	c.ChooseNick("alice")

	sent := conn.waitSent(t, 13)
	var messages []string
	for _, raw := range sent {
		if len(raw) >= 7 && raw[:7] == "PRIVMSG" {
			messages = append(messages, raw)
		}
	}
	require.Len(t, messages, 10)
	for i, raw := range messages {
		require.Equal(t, fmt.Sprintf("PRIVMSG #t :line %d\r\n", i), raw)
	}
}

func TestSendQueueFull(t *testing.T) {
	c, err := NewClient()
	require.NoError(t, err)
	for i := 0; i < DefaultOutboundDepth; i++ {
		require.NoError(t, c.Send("x"))
	}
	require.ErrorIs(t, c.Send("overflow"), ErrQueueFull)
}

func TestReceiveRaisesDisplayEvents(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	c, err := NewClient(WithChannel("#t"), WithDisplay(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	}))
	require.NoError(t, err)
	conn := newFakeConn()
	runClient(t, c, conn)

	conn.reads <- []byte(":bob!bu@h PRIVMSG #t :hello world\r\n")
	conn.reads <- []byte(":bob!bu@h JOIN #t\r\n")
	conn.reads <- []byte(":bob!bu@h PART #t\r\n")
	conn.reads <- []byte(":srv 999 whatever\r\n")     // unrecognized: ignored
	conn.reads <- []byte("garbage with no crlf")      // malformed: dropped
	conn.reads <- []byte(":bob!bu@h PRIVMSG #t :bye\r\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lines) == 4
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{
		"<bob> hello world",
		"bob joined #t",
		"bob left #t",
		"<bob> bye",
	}, lines)
}

func TestRunWithoutConnect(t *testing.T) {
	c, err := NewClient()
	require.NoError(t, err)
	require.ErrorIs(t, c.Run(context.Background()), ErrNotConnected)
}
