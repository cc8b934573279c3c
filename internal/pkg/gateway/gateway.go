// Package gateway bridges WebSocket clients onto the chat engine. Each
// upgraded connection is adapted into a framed transport and handed to
// the same per-connection loop raw TCP clients run, so the engine stays
// transport agnostic.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"minirc/internal/pkg/session"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The engine performs no origin-based auth; browsers talk to their
	// own deployment.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler is the sink upgraded connections are handed to; the server's
// ServeConn satisfies it.
type Handler func(ctx context.Context, conn session.Conn)

// Gateway is the WebSocket ingress.
type Gateway struct {
	port   uint16
	handle Handler
}

// Cfg configures a Gateway.
type Cfg func(*Gateway) error

// WithPort sets the HTTP port the gateway listens on.
func WithPort(p uint16) Cfg {
	return func(g *Gateway) error {
		g.port = p
		return nil
	}
}

// NewGateway creates a Gateway feeding upgraded connections to handle.
func NewGateway(handle Handler, cfgs ...Cfg) (*Gateway, error) {
	if handle == nil {
		return nil, errors.New("gateway requires a connection handler")
	}
	g := &Gateway{handle: handle}
	for _, cfg := range cfgs {
		if err := cfg(g); err != nil {
			return nil, errors.Wrap(err, "apply Gateway cfg failed")
		}
	}
	return g, nil
}

// ListenAndServe serves the /ws upgrade endpoint until ctx is cancelled.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "websocket endpoint only accepts GET", http.StatusMethodNotAllowed)
			return
		}
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithError(err).Warn("websocket upgrade failed")
			return
		}
		g.handle(ctx, NewWSConn(wsConn))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", g.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("gateway shutdown failed")
		}
	}()
	logger.WithField("port", g.port).Info("websocket gateway listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "gateway listen failed")
	}
	return nil
}

// wsConn adapts one WebSocket connection to the framed transport the
// engine consumes: each WebSocket message carries one protocol line.
type wsConn struct {
	conn *websocket.Conn
}

// NewWSConn wraps an upgraded WebSocket connection.
func NewWSConn(conn *websocket.Conn) session.Conn {
	return &wsConn{conn: conn}
}

// ReadFrame returns the next WebSocket message, CRLF-appended when the
// sender omitted it, so browser clients need not speak raw line endings.
func (c *wsConn) ReadFrame() ([]byte, error) {
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(err, "read websocket message failed")
	}
	if n := len(raw); n < 2 || raw[n-2] != '\r' || raw[n-1] != '\n' {
		raw = append(raw, '\r', '\n')
	}
	return raw, nil
}

func (c *wsConn) WriteFrame(raw []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
