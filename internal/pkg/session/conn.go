package session

import (
	"bufio"
	"net"
)

// Conn is the framed transport a Session owns. ReadFrame blocks until one
// CRLF-terminated frame of raw bytes is available (or the stream fails);
// WriteFrame pushes raw bytes to the peer with no acknowledgment.
// Implementations exist for raw TCP and for the WebSocket gateway.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(raw []byte) error
	RemoteAddr() string
	Close() error
}

type tcpConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

// NewTCPConn wraps a stream connection in line-oriented framing.
func NewTCPConn(conn net.Conn) Conn {
	return &tcpConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// ReadFrame returns the next LF-terminated chunk including its line
// terminator. Frames with a bare LF (or otherwise malformed) are left for
// the codec to reject; only stream errors are fatal here.
func (c *tcpConn) ReadFrame() ([]byte, error) {
	return c.reader.ReadBytes('\n')
}

func (c *tcpConn) WriteFrame(raw []byte) error {
	_, err := c.conn.Write(raw)
	return err
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}
