// Package framelog logs the device activity (joins, uplinks and network
// events) to a capped Redis stream and publishes it on a Redis pub-sub
// channel for live consumers.
package framelog

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-classa-device/internal/classa"
	"github.com/brocaar/chirpstack-classa-device/internal/logging"
	"github.com/brocaar/chirpstack-classa-device/internal/queue"
	"github.com/brocaar/chirpstack-classa-device/internal/session"
	"github.com/brocaar/chirpstack-classa-device/internal/storage"
	"github.com/brocaar/lorawan"
)

const (
	deviceLogStreamKeyTempl = "lora:device:%s:stream:log"
	deviceLogPubSubKeyTempl = "lora:device:%s:pubsub:log"
)

var _ classa.Handler = &Handler{}

// LogEntry holds a single log entry. Only the fields related to the entry
// type are set.
type LogEntry struct {
	Type string
	Time time.Time

	DevAddr  lorawan.DevAddr
	DataRate int

	FPort          uint8
	Data           []byte
	Confirmed      bool
	PendingFlush   bool
	BytesSent      int
	NbRetries      int
	DutyCycleWaits int
	DutyCycleWait  time.Duration
	Error          string

	RSSI         int16
	SNR          int8
	DemodMargin  uint8
	GatewayCount uint8
}

// LogEntryForDevice appends the given entry to the log stream of the device
// and publishes it to the device pub-sub channel. The stream is capped at
// maxHistory entries (0 = stream disabled).
func LogEntryForDevice(ctx context.Context, devEUI lorawan.EUI64, maxHistory int64, e LogEntry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return errors.Wrap(err, "gob encode error")
	}
	b := buf.Bytes()

	pipe := storage.RedisClient().Pipeline()
	if maxHistory > 0 {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: storage.GetRedisKey(deviceLogStreamKeyTempl, devEUI),
			MaxLen: maxHistory,
			Approx: true,
			Values: map[string]interface{}{"type": e.Type, "entry": b},
		})
	}
	pipe.Publish(ctx, storage.GetRedisKey(deviceLogPubSubKeyTempl, devEUI), b)

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "log entry error")
	}

	return nil
}

// GetLogHistoryForDevice returns up to count of the most recent log entries
// of the device, oldest first.
func GetLogHistoryForDevice(ctx context.Context, devEUI lorawan.EUI64, count int64) ([]LogEntry, error) {
	msgs, err := storage.RedisClient().XRevRangeN(ctx, storage.GetRedisKey(deviceLogStreamKeyTempl, devEUI), "+", "-", count).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read log stream error")
	}

	out := make([]LogEntry, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		v, ok := msgs[i].Values["entry"].(string)
		if !ok {
			continue
		}

		e, err := decodeLogEntry([]byte(v))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, nil
}

// GetLogsForDevice subscribes to the log entries of the given device and
// sends these to the given channel until ctx is cancelled.
func GetLogsForDevice(ctx context.Context, devEUI lorawan.EUI64, logChan chan LogEntry) error {
	sub := storage.RedisClient().Subscribe(ctx, storage.GetRedisKey(deviceLogPubSubKeyTempl, devEUI))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribe error")
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			e, err := decodeLogEntry([]byte(msg.Payload))
			if err != nil {
				return err
			}

			select {
			case logChan <- e:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func decodeLogEntry(b []byte) (LogEntry, error) {
	var e LogEntry
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&e); err != nil {
		return e, errors.Wrap(err, "gob decode error")
	}
	return e, nil
}

// Handler logs the Class-A loop activity of a device.
type Handler struct {
	devEUI     lorawan.EUI64
	maxHistory int64
}

// NewHandler creates a new Handler.
func NewHandler(devEUI lorawan.EUI64, maxHistory int64) *Handler {
	return &Handler{
		devEUI:     devEUI,
		maxHistory: maxHistory,
	}
}

// HandleJoin implements classa.Handler.
func (h *Handler) HandleJoin(ctx context.Context, s session.State) error {
	return h.log(ctx, NewJoinEntry(s))
}

// HandleUplink implements classa.Handler.
func (h *Handler) HandleUplink(ctx context.Context, r classa.UplinkResult) error {
	return h.log(ctx, NewUplinkEntry(r))
}

// HandleEvent implements classa.Handler.
func (h *Handler) HandleEvent(ctx context.Context, e queue.Event) error {
	return h.log(ctx, NewEventEntry(e))
}

func (h *Handler) log(ctx context.Context, e LogEntry) error {
	if err := LogEntryForDevice(ctx, h.devEUI, h.maxHistory, e); err != nil {
		return err
	}

	logging.Logger(ctx).WithFields(log.Fields{
		"dev_eui": h.devEUI,
		"type":    e.Type,
	}).Debug("framelog: entry logged")

	return nil
}
