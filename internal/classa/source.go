package classa

import (
	"context"

	"github.com/pkg/errors"

	"github.com/brocaar/chirpstack-classa-device/internal/storage"
	"github.com/brocaar/lorawan"
)

// StorageSource is a PayloadSource reading the device uplink queue from the
// storage.
type StorageSource struct {
	devEUI lorawan.EUI64
}

// NewStorageSource creates a new StorageSource for the given device.
func NewStorageSource(devEUI lorawan.EUI64) *StorageSource {
	return &StorageSource{devEUI: devEUI}
}

// NextUplink implements PayloadSource.
func (s *StorageSource) NextUplink(ctx context.Context) (Uplink, bool, error) {
	qi, err := storage.DequeueUplink(ctx, s.devEUI)
	if err != nil {
		if errors.Cause(err) == storage.ErrDoesNotExist {
			return Uplink{}, false, nil
		}
		return Uplink{}, false, err
	}

	return Uplink{
		FPort:     qi.FPort,
		Payload:   qi.FRMPayload,
		Confirmed: qi.Confirmed,
	}, true, nil
}
