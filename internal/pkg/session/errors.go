package session

import "errors"

var ErrAlreadyRegistered = errors.New("session already registered")
