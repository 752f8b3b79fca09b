package join

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/brocaar/chirpstack-classa-device/internal/mac"
)

// ErrMaxAttemptsExceeded is returned when all join attempts failed.
var ErrMaxAttemptsExceeded = errors.New("maximum number of join attempts exceeded")

// RequestRejectedError is returned when the engine rejected the join request
// for any other reason than the duty-cycle.
type RequestRejectedError struct {
	Status mac.Status
}

func (e *RequestRejectedError) Error() string {
	return fmt.Sprintf("join request rejected: %s", e.Status)
}
