package session

import "errors"

// ErrInvalidConfig is returned when a session configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid session config")
