package client

import "github.com/pkg/errors"

// ErrNotConnected indicates Run was called before Connect.
var ErrNotConnected = errors.New("not connected")

// ErrDisconnected indicates the server closed the connection.
var ErrDisconnected = errors.New("disconnected from server")

// ErrQueueFull indicates the outbound queue rejected a line.
var ErrQueueFull = errors.New("outbound queue full")
