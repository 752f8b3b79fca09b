package uplink

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/brocaar/chirpstack-classa-device/internal/mac"
)

// ErrNotAcknowledged is returned when a confirmed uplink was not
// acknowledged by the network.
var ErrNotAcknowledged = errors.New("confirmed uplink was not acknowledged")

// RequestRejectedError is returned when the engine rejected the uplink
// request for any other reason than the duty-cycle.
type RequestRejectedError struct {
	Status mac.Status
}

func (e *RequestRejectedError) Error() string {
	return fmt.Sprintf("uplink request rejected: %s", e.Status)
}

// ConfirmationError is returned when the engine confirmed the uplink with a
// status other than OK.
type ConfirmationError struct {
	Status mac.EventInfoStatus
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("uplink confirmation error: %s", e.Status)
}
