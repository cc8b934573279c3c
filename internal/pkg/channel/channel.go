// Package channel implements named broadcast groups over non-owning
// member references. Delivery is concurrent, best-effort and at-most-once:
// a fan-out waits for all sends up to a fixed deadline and abandons
// whatever is still pending, so slow or dead peers never hold up healthy
// ones.
package channel

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// DefaultBroadcastTimeout bounds how long a fan-out waits for all sends.
const DefaultBroadcastTimeout = time.Second

// Member is the send side of a channel occupant. Sessions satisfy it; the
// channel holds no ownership over members.
type Member interface {
	Send(raw []byte) error
	Nick() string
}

// Channel is a named group of members receiving broadcasts.
type Channel struct {
	Name string

	timeout time.Duration

	mu      sync.RWMutex
	topic   string
	members map[Member]struct{}
}

// Cfg configures a Channel.
type Cfg func(*Channel)

// WithBroadcastTimeout overrides the fan-out deadline.
func WithBroadcastTimeout(d time.Duration) Cfg {
	return func(c *Channel) {
		c.timeout = d
	}
}

// New creates an empty channel with the given name.
func New(name string, cfgs ...Cfg) *Channel {
	c := &Channel{
		Name:    name,
		timeout: DefaultBroadcastTimeout,
		members: make(map[Member]struct{}),
	}
	for _, cfg := range cfgs {
		cfg(c)
	}
	return c
}

// Topic returns the channel topic, empty by default.
func (c *Channel) Topic() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topic
}

// SetTopic replaces the channel topic.
func (c *Channel) SetTopic(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topic = topic
}

// Add inserts a member. Adding an existing member is a no-op.
func (c *Channel) Add(m Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[m] = struct{}{}
}

// Remove drops a member if present and reports whether it was.
func (c *Channel) Remove(m Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[m]; !ok {
		return false
	}
	delete(c.members, m)
	return true
}

// Has reports current membership.
func (c *Channel) Has(m Member) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[m]
	return ok
}

// Len returns the visible member count.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Members returns a snapshot of the membership set.
func (c *Channel) Members() []Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	members := make([]Member, 0, len(c.members))
	for m := range c.members {
		members = append(members, m)
	}
	return members
}

// Nicks returns the nicks of all current members.
func (c *Channel) Nicks() []string {
	members := c.Members()
	nicks := make([]string, 0, len(members))
	for _, m := range members {
		nicks = append(nicks, m.Nick())
	}
	return nicks
}

// Broadcast delivers raw to every member except exclude, concurrently,
// waiting for all sends up to the channel deadline. Sends still pending at
// the deadline are abandoned; no error reaches the caller either way.
// It returns the number of deliveries that were attempted.
func (c *Channel) Broadcast(raw []byte, exclude Member) int {
	members := c.Members()

	var wg sync.WaitGroup
	attempted := 0
	for _, m := range members {
		if m == exclude {
			continue
		}
		attempted++
		wg.Add(1)
		go func(m Member) {
			defer wg.Done()
			if err := m.Send(raw); err != nil {
				logger.WithFields(logrus.Fields{
					"channel": c.Name,
					"nick":    m.Nick(),
				}).WithError(err).Debug("broadcast send failed")
			}
		}(m)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.timeout):
		logger.WithField("channel", c.Name).Warn("broadcast deadline reached, abandoning pending sends")
	}
	return attempted
}
