package storage

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-classa-device/internal/logging"
	"github.com/brocaar/lorawan"
)

const uplinkQueueKeyTempl = "lora:device:%s:uplink:queue"

// UplinkQueueItem holds an application payload waiting to be sent.
type UplinkQueueItem struct {
	FPort      uint8
	FRMPayload []byte
	Confirmed  bool
	CreatedAt  time.Time
}

// EnqueueUplink appends the given item to the uplink queue of the device.
func EnqueueUplink(ctx context.Context, devEUI lorawan.EUI64, qi UplinkQueueItem) error {
	if qi.FPort == 0 || qi.FPort > 223 {
		return ErrInvalidFPort
	}

	if qi.CreatedAt.IsZero() {
		qi.CreatedAt = time.Now()
	}

	key := GetRedisKey(uplinkQueueKeyTempl, devEUI)

	if uplinkQueueMaxLength > 0 {
		n, err := RedisClient().LLen(ctx, key).Result()
		if err != nil {
			return errors.Wrap(err, "get uplink queue length error")
		}
		if n >= uplinkQueueMaxLength {
			return ErrQueueFull
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(qi); err != nil {
		return errors.Wrap(err, "gob encode error")
	}

	if err := RedisClient().RPush(ctx, key, buf.Bytes()).Err(); err != nil {
		return errors.Wrap(err, "enqueue uplink error")
	}

	log.WithFields(log.Fields{
		"dev_eui": devEUI,
		"f_port":  qi.FPort,
		"ctx_id":  ctx.Value(logging.ContextIDKey),
	}).Info("storage: uplink enqueued")

	return nil
}

// DequeueUplink pops the first item of the uplink queue of the device.
// ErrDoesNotExist is returned when the queue is empty.
func DequeueUplink(ctx context.Context, devEUI lorawan.EUI64) (UplinkQueueItem, error) {
	var qi UplinkQueueItem

	b, err := RedisClient().LPop(ctx, GetRedisKey(uplinkQueueKeyTempl, devEUI)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return qi, ErrDoesNotExist
		}
		return qi, errors.Wrap(err, "dequeue uplink error")
	}

	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&qi); err != nil {
		return qi, errors.Wrap(err, "gob decode error")
	}

	return qi, nil
}

// GetUplinkQueueLength returns the number of queued uplinks of the device.
func GetUplinkQueueLength(ctx context.Context, devEUI lorawan.EUI64) (int, error) {
	n, err := RedisClient().LLen(ctx, GetRedisKey(uplinkQueueKeyTempl, devEUI)).Result()
	if err != nil {
		return 0, errors.Wrap(err, "get uplink queue length error")
	}
	return int(n), nil
}

// FlushUplinkQueue removes all queued uplinks of the device.
func FlushUplinkQueue(ctx context.Context, devEUI lorawan.EUI64) error {
	if err := RedisClient().Del(ctx, GetRedisKey(uplinkQueueKeyTempl, devEUI)).Err(); err != nil {
		return errors.Wrap(err, "flush uplink queue error")
	}

	log.WithFields(log.Fields{
		"dev_eui": devEUI,
		"ctx_id":  ctx.Value(logging.ContextIDKey),
	}).Info("storage: uplink queue flushed")

	return nil
}
