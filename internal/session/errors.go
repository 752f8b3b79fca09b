package session

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/brocaar/chirpstack-classa-device/internal/mac"
)

// session errors
var (
	ErrNotStarted     = errors.New("session is not started")
	ErrAlreadyStarted = errors.New("session is already started")
	ErrShutdown       = errors.New("session has been shut down")
)

// EngineError is returned when the engine returned a non-OK status for a
// request which is not handled by the join or uplink managers.
type EngineError struct {
	Op     string
	Status mac.Status
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Op, e.Status)
}
