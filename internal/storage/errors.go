package storage

import (
	"github.com/pkg/errors"
)

// errors
var (
	ErrDoesNotExist = errors.New("object does not exist")
	ErrQueueFull    = errors.New("uplink queue is full")
	ErrInvalidFPort = errors.New("f_port must be between 1 and 223")
)
