package amqp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/brocaar/chirpstack-classa-device/internal/integration"
	"github.com/brocaar/chirpstack-classa-device/internal/storage"
	"github.com/brocaar/chirpstack-classa-device/internal/test"
	"github.com/brocaar/lorawan"
)

type BackendTestSuite struct {
	suite.Suite

	devEUI  lorawan.EUI64
	backend *Backend

	amqpConn      *amqp.Connection
	amqpChannel   *amqp.Channel
	amqpEventChan <-chan amqp.Delivery
}

func (ts *BackendTestSuite) SetupSuite() {
	var err error
	assert := require.New(ts.T())
	conf := test.GetConfig()

	ts.devEUI = conf.Device.DevEUI
	assert.NoError(storage.Setup(conf))

	ts.backend, err = NewBackend(conf)
	assert.NoError(err)

	ts.amqpConn, err = amqp.Dial(conf.Integration.AMQP.URL)
	assert.NoError(err)

	ts.amqpChannel, err = ts.amqpConn.Channel()
	assert.NoError(err)

	_, err = ts.amqpChannel.QueueDeclare(
		"test-event-queue",
		true,
		false,
		false,
		false,
		nil,
	)
	assert.NoError(err)

	err = ts.amqpChannel.QueueBind(
		"test-event-queue",
		"device.*.event.*",
		"amq.topic",
		false,
		nil,
	)
	assert.NoError(err)

	ts.amqpEventChan, err = ts.amqpChannel.Consume(
		"test-event-queue",
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	assert.NoError(err)
}

func (ts *BackendTestSuite) TearDownSuite() {
	assert := require.New(ts.T())
	assert.NoError(ts.backend.Close())
	assert.NoError(ts.amqpConn.Close())
}

func (ts *BackendTestSuite) SetupTest() {
	test.MustFlushRedis(storage.RedisClient())
}

func (ts *BackendTestSuite) TestPublishEvent() {
	assert := require.New(ts.T())

	assert.NoError(ts.backend.PublishEvent(context.Background(), ts.devEUI, "downlink", integration.DownlinkEvent{
		DevEUI: ts.devEUI,
		FPort:  2,
		Data:   []byte{1, 2},
	}))

	msg := <-ts.amqpEventChan
	assert.Equal("device.0102030405060708.event.downlink", msg.RoutingKey)
	assert.Equal("application/json", msg.ContentType)

	var pl integration.DownlinkEvent
	assert.NoError(json.Unmarshal(msg.Body, &pl))
	assert.Equal(ts.devEUI, pl.DevEUI)
	assert.Equal(uint8(2), pl.FPort)
	assert.Equal([]byte{1, 2}, pl.Data)
}

func (ts *BackendTestSuite) TestUplinkCommand() {
	assert := require.New(ts.T())

	err := ts.amqpChannel.Publish(
		"amq.topic",
		"device.0102030405060708.command.up",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(`{"fPort":3,"data":"/w==","confirmed":true}`),
		},
	)
	assert.NoError(err)

	var qi storage.UplinkQueueItem
	for i := 0; i < 50; i++ {
		qi, err = storage.DequeueUplink(context.Background(), ts.devEUI)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.NoError(err)
	assert.Equal(uint8(3), qi.FPort)
	assert.Equal([]byte{0xff}, qi.FRMPayload)
	assert.True(qi.Confirmed)
}

func TestBackend(t *testing.T) {
	if !test.RabbitMQEnabled() || !test.RedisEnabled() {
		t.Skip("TEST_RABBITMQ_URL or TEST_REDIS_URL is not set")
	}

	suite.Run(t, new(BackendTestSuite))
}
