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

const deviceContextKeyTempl = "lora:device:%s:context"

// DeviceContext holds the MAC context which must survive a restart of the
// device (the equivalent of the non-volatile memory of a real device).
type DeviceContext struct {
	DevEUI         lorawan.EUI64
	JoinEUI        lorawan.EUI64
	Activation     int
	NetID          lorawan.NetID
	DevAddr        lorawan.DevAddr
	LoRaWANVersion string
	DevNonce       uint16
	AppSKey        lorawan.AES128Key
	NwkSEncKey     lorawan.AES128Key
	FCntUp         uint32
	FCntDown       uint32
	DataRate       int
	ADR            bool
	UpdatedAt      time.Time
}

// SaveDeviceContext saves the given device context.
func SaveDeviceContext(ctx context.Context, dc DeviceContext) error {
	dc.UpdatedAt = time.Now()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(dc); err != nil {
		return errors.Wrap(err, "gob encode error")
	}

	err := RedisClient().Set(ctx, GetRedisKey(deviceContextKeyTempl, dc.DevEUI), buf.Bytes(), 0).Err()
	if err != nil {
		return errors.Wrap(err, "save device context error")
	}

	log.WithFields(log.Fields{
		"dev_eui":  dc.DevEUI,
		"dev_addr": dc.DevAddr,
		"f_cnt_up": dc.FCntUp,
		"ctx_id":   ctx.Value(logging.ContextIDKey),
	}).Debug("storage: device context saved")

	return nil
}

// GetDeviceContext returns the device context of the given device.
func GetDeviceContext(ctx context.Context, devEUI lorawan.EUI64) (DeviceContext, error) {
	var dc DeviceContext

	b, err := RedisClient().Get(ctx, GetRedisKey(deviceContextKeyTempl, devEUI)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return dc, ErrDoesNotExist
		}
		return dc, errors.Wrap(err, "get device context error")
	}

	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&dc); err != nil {
		return dc, errors.Wrap(err, "gob decode error")
	}

	return dc, nil
}

// DeleteDeviceContext deletes the device context of the given device.
func DeleteDeviceContext(ctx context.Context, devEUI lorawan.EUI64) error {
	n, err := RedisClient().Del(ctx, GetRedisKey(deviceContextKeyTempl, devEUI)).Result()
	if err != nil {
		return errors.Wrap(err, "delete device context error")
	}
	if n == 0 {
		return ErrDoesNotExist
	}

	log.WithFields(log.Fields{
		"dev_eui": devEUI,
		"ctx_id":  ctx.Value(logging.ContextIDKey),
	}).Info("storage: device context deleted")

	return nil
}
