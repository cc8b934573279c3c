package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeMember struct {
	nick string

	mu       sync.Mutex
	received [][]byte
	block    chan struct{} // non-nil: Send parks until closed
}

func (m *fakeMember) Send(raw []byte) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, raw)
	return nil
}

func (m *fakeMember) Nick() string { return m.nick }

func (m *fakeMember) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

func TestMembershipSetAlgebra(t *testing.T) {
	ch := New("#t")
	a := &fakeMember{nick: "a"}
	b := &fakeMember{nick: "b"}

	ch.Add(a)
	ch.Add(b)
	ch.Add(a) // idempotent
	require.Equal(t, 2, ch.Len())
	require.True(t, ch.Has(a))

	require.True(t, ch.Remove(a))
	require.False(t, ch.Remove(a))
	require.False(t, ch.Has(a))
	require.Equal(t, 1, ch.Len())
	require.ElementsMatch(t, []string{"b"}, ch.Nicks())
}

func TestBroadcastExcludesSender(t *testing.T) {
	ch := New("#t")
	a := &fakeMember{nick: "a"}
	b := &fakeMember{nick: "b"}
	c := &fakeMember{nick: "c"}
	ch.Add(a)
	ch.Add(b)
	ch.Add(c)

	attempted := ch.Broadcast([]byte("PRIVMSG #t hi\r\n"), a)
	require.Equal(t, 2, attempted)
	require.Zero(t, a.count())
	require.Equal(t, 1, b.count())
	require.Equal(t, 1, c.count())
}

func TestBroadcastToleratesStuckMember(t *testing.T) {
	ch := New("#t", WithBroadcastTimeout(50*time.Millisecond))
	stuck := &fakeMember{nick: "stuck", block: make(chan struct{})}
	healthy := make([]*fakeMember, 4)
	for i := range healthy {
		healthy[i] = &fakeMember{nick: "ok"}
		ch.Add(healthy[i])
	}
	ch.Add(stuck)

	start := time.Now()
	ch.Broadcast([]byte("hello\r\n"), nil)
	require.Less(t, time.Since(start), time.Second)

	for _, m := range healthy {
		require.Equal(t, 1, m.count())
	}
	require.Zero(t, stuck.count())
	close(stuck.block)
}

func TestBroadcastEmptyChannel(t *testing.T) {
	ch := New("#empty")
	require.Zero(t, ch.Broadcast([]byte("hi\r\n"), nil))
}

func TestTopic(t *testing.T) {
	ch := New("#t")
	require.Empty(t, ch.Topic())
	ch.SetTopic("welcome")
	require.Equal(t, "welcome", ch.Topic())
}
