// Package integration publishes the device events to an application
// integration and consumes the uplink commands sent by the application.
package integration

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-classa-device/internal/logging"
	"github.com/brocaar/chirpstack-classa-device/internal/storage"
	"github.com/brocaar/lorawan"
)

// Command types.
const (
	CommandUp = "up"
)

var integration Integration

// Get returns the integration.
func Get() Integration {
	return integration
}

// Set sets the given integration.
func Set(i Integration) {
	integration = i
}

// Integration is the interface of an integration backend.
type Integration interface {
	PublishEvent(ctx context.Context, devEUI lorawan.EUI64, eventType string, v interface{}) error // publish the given event
	Close() error                                                                                  // close the integration
}

// EventTopicContext is the context used for executing the event topic
// (or routing-key) templates.
type EventTopicContext struct {
	DevEUI    lorawan.EUI64
	EventType string
}

// CommandTopicContext is the context used for executing the command topic
// (or routing-key) templates.
type CommandTopicContext struct {
	DevEUI      lorawan.EUI64
	CommandType string
}

// HandleCommand handles the given command received by an integration
// backend.
func HandleCommand(ctx context.Context, devEUI lorawan.EUI64, commandType string, b []byte) error {
	switch commandType {
	case CommandUp:
		return handleUplinkCommand(ctx, devEUI, b)
	default:
		return errors.Errorf("unexpected command type: %s", commandType)
	}
}

func handleUplinkCommand(ctx context.Context, devEUI lorawan.EUI64, b []byte) error {
	var cmd UplinkCommand
	if err := json.Unmarshal(b, &cmd); err != nil {
		return errors.Wrap(err, "unmarshal uplink command error")
	}

	if cmd.DevEUI != nil && *cmd.DevEUI != devEUI {
		return errors.Errorf("command dev_eui %s does not match %s", cmd.DevEUI, devEUI)
	}

	if err := storage.EnqueueUplink(ctx, devEUI, storage.UplinkQueueItem{
		FPort:      cmd.FPort,
		FRMPayload: cmd.Data,
		Confirmed:  cmd.Confirmed,
	}); err != nil {
		return errors.Wrap(err, "enqueue uplink error")
	}

	log.WithFields(log.Fields{
		"dev_eui":   devEUI,
		"f_port":    cmd.FPort,
		"confirmed": cmd.Confirmed,
		"ctx_id":    ctx.Value(logging.ContextIDKey),
	}).Info("integration: uplink command handled")

	return nil
}
