package server

import "github.com/pkg/errors"

// ErrNickInUse indicates the requested nick is bound to another live session.
var ErrNickInUse = errors.New("nick already in use")

// errQuit signals the connection loop to end after a graceful QUIT.
var errQuit = errors.New("session quit")
