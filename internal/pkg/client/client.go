package client

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"minirc/internal/pkg/log"
	"minirc/internal/pkg/session"
	"minirc/internal/pkg/wire"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// DefaultOutboundDepth bounds the queue of user lines awaiting serialization.
const DefaultOutboundDepth = 64

// DisplayFunc receives plain strings ready for the UI layer to render.
type DisplayFunc func(line string)

// Client adapts the wire protocol hand-in-hand with an external UI: user
// lines go in through Send, display strings come out through the
// configured callback, and the login handshake fires once ChooseNick
// releases the gate.
type Client struct {
	serverAddr string
	uuid       uuid.UUID

	nick     string
	username string
	realname string
	channel  string

	display DisplayFunc

	// outbound is the FIFO queue of user-typed lines; being the only
	// ordering point, it preserves submission order across goroutines.
	outbound chan string

	nickChosen chan struct{}
	chooseOnce sync.Once

	conn    session.Conn
	writeMu sync.Mutex
}

// Cfg configures a Client.
type Cfg func(*Client) error

// WithServerPort sets the server port to connect to on localhost.
func WithServerPort(p uint16) Cfg {
	return func(c *Client) error {
		c.serverAddr = fmt.Sprintf("localhost:%d", p)
		return nil
	}
}

// WithServerAddr sets the full server address to connect to.
func WithServerAddr(addr string) Cfg {
	return func(c *Client) error {
		c.serverAddr = addr
		return nil
	}
}

// WithChannel sets the channel joined after the handshake and targeted by
// outgoing messages.
func WithChannel(name string) Cfg {
	return func(c *Client) error {
		if name == "" {
			return errors.New("channel must not be empty")
		}
		c.channel = name
		return nil
	}
}

// WithUser sets the username and realname sent during the handshake.
func WithUser(username, realname string) Cfg {
	return func(c *Client) error {
		c.username = username
		c.realname = realname
		return nil
	}
}

// WithDisplay sets the callback receiving display strings for the UI.
func WithDisplay(display DisplayFunc) Cfg {
	return func(c *Client) error {
		c.display = display
		return nil
	}
}

// NewClient creates a new Client with the given configuration.
func NewClient(cfgs ...Cfg) (*Client, error) {
	client := &Client{
		channel:    "#general",
		display:    func(string) {},
		outbound:   make(chan string, DefaultOutboundDepth),
		nickChosen: make(chan struct{}),
	}
	for _, cfg := range cfgs {
		if err := cfg(client); err != nil {
			return nil, errors.Wrap(err, "apply Client cfg failed")
		}
	}
	client.uuid = uuid.New()
	return client, nil
}

// Connect establishes the connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.serverAddr)
	if err != nil {
		return errors.Wrapf(err, "connect to %s failed", c.serverAddr)
	}
	c.conn = session.NewTCPConn(conn)
	return nil
}

// ChooseNick releases the login gate exactly once; later calls are
// ignored. The handshake does not start until this fires.
func (c *Client) ChooseNick(nick string) {
	c.chooseOnce.Do(func() {
		c.nick = nick
		close(c.nickChosen)
	})
}

// Send queues one completed line of user input for delivery. Lines are
// serialized strictly in queue order.
func (c *Client) Send(line string) error {
	select {
	case c.outbound <- line:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run drives the adapter: the login handshake once the nick gate opens,
// the outbound drain, and the receive loop. It returns when ctx is
// cancelled or the connection fails.
func (c *Client) Run(ctx context.Context) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(runCtx)
	go func() {
		// Closing the transport unblocks the receive loop whether the
		// caller cancelled or a sibling goroutine failed.
		<-groupCtx.Done()
		if err := c.conn.Close(); err != nil {
			logger.WithError(err).Debug("close connection failed")
		}
	}()
	group.Go(func() error { return c.login(groupCtx) })
	group.Go(func() error { return c.drain(groupCtx) })
	group.Go(func() error { return c.receive(groupCtx) })
	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "run client failed")
	}
	return nil
}

// login waits for the nick gate, then fires NICK, USER and JOIN in order
// with no acknowledgment awaited between them.
func (c *Client) login(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-c.nickChosen:
	}
	username := c.username
	if username == "" {
		username = c.nick
	}
	realname := c.realname
	if realname == "" {
		realname = c.nick
	}
	frames := [][]byte{
		wire.Encode("", "NICK", c.nick),
		wire.Encode("", "USER", username, "0", "*", realname),
		wire.Encode("", "JOIN", c.channel),
	}
	for _, raw := range frames {
		if err := c.write(raw); err != nil {
			return errors.Wrap(err, "send handshake frame failed")
		}
	}
	logger.WithFields(logrus.Fields{
		"uuid":    c.uuid.String(),
		"nick":    c.nick,
		"channel": c.channel,
	}).Info("handshake sent")
	return nil
}

// drain pulls queued lines strictly in FIFO order and serializes each as
// a PRIVMSG to the configured channel.
func (c *Client) drain(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-c.outbound:
			raw := wire.Encode("", "PRIVMSG", c.channel, line)
			if err := c.write(raw); err != nil {
				return errors.Wrap(err, "send message failed")
			}
		}
	}
}

// write serializes frame writes so the handshake and the drain never
// interleave partial frames.
func (c *Client) write(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteFrame(raw)
}

// receive decodes incoming frames and raises chat, join and part notices
// to the display callback. Unrecognized commands are ignored.
func (c *Client) receive(ctx context.Context) error {
	for {
		raw, err := c.conn.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return ErrDisconnected
		}
		frame, err := wire.Decode(raw)
		if err != nil {
			logger.WithError(err).Debug("dropped malformed frame")
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame wire.Frame) {
	sender := wire.SenderNick(frame.Prefix)
	switch strings.ToUpper(frame.Command) {
	case "PRIVMSG":
		if len(frame.Params) < 2 {
			return
		}
		c.display(fmt.Sprintf("<%s> %s", sender, frame.Params[1]))
	case "JOIN":
		if len(frame.Params) < 1 {
			return
		}
		c.display(fmt.Sprintf("%s joined %s", sender, frame.Params[0]))
	case "PART":
		if len(frame.Params) < 1 {
			return
		}
		c.display(fmt.Sprintf("%s left %s", sender, frame.Params[0]))
	default:
		logger.WithFields(log.FrameToFields(frame)).Trace("ignoring frame")
	}
}
