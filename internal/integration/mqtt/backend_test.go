package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/brocaar/chirpstack-classa-device/internal/integration"
	"github.com/brocaar/chirpstack-classa-device/internal/storage"
	"github.com/brocaar/chirpstack-classa-device/internal/test"
	"github.com/brocaar/lorawan"
)

type BackendTestSuite struct {
	suite.Suite

	backend    *Backend
	mqttClient paho.Client
	devEUI     lorawan.EUI64
}

func (ts *BackendTestSuite) SetupSuite() {
	assert := require.New(ts.T())

	conf := test.GetConfig()
	ts.devEUI = conf.Device.DevEUI
	assert.NoError(storage.Setup(conf))

	opts := paho.NewClientOptions().
		AddBroker(conf.Integration.MQTT.Server).
		SetUsername(conf.Integration.MQTT.Username).
		SetPassword(conf.Integration.MQTT.Password)
	ts.mqttClient = paho.NewClient(opts)
	token := ts.mqttClient.Connect()
	token.Wait()
	assert.NoError(token.Error())

	var err error
	ts.backend, err = NewBackend(conf)
	assert.NoError(err)
}

func (ts *BackendTestSuite) TearDownSuite() {
	assert := require.New(ts.T())

	assert.NoError(ts.backend.Close())
	ts.mqttClient.Disconnect(0)
}

func (ts *BackendTestSuite) SetupTest() {
	test.MustFlushRedis(storage.RedisClient())
}

func (ts *BackendTestSuite) TestPublishEvent() {
	assert := require.New(ts.T())

	eventChan := make(chan integration.LinkCheckEvent)
	token := ts.mqttClient.Subscribe("device/+/event/link_check", 0, func(c paho.Client, msg paho.Message) {
		var pl integration.LinkCheckEvent
		if err := json.Unmarshal(msg.Payload(), &pl); err != nil {
			panic(err)
		}
		eventChan <- pl
	})
	token.Wait()
	assert.NoError(token.Error())
	defer ts.mqttClient.Unsubscribe("device/+/event/link_check").Wait()

	assert.NoError(ts.backend.PublishEvent(context.Background(), ts.devEUI, "link_check", integration.LinkCheckEvent{
		DevEUI:       ts.devEUI,
		DemodMargin:  20,
		GatewayCount: 2,
	}))

	pl := <-eventChan
	assert.Equal(ts.devEUI, pl.DevEUI)
	assert.Equal(uint8(20), pl.DemodMargin)
	assert.Equal(uint8(2), pl.GatewayCount)
}

func (ts *BackendTestSuite) TestUplinkCommand() {
	assert := require.New(ts.T())

	token := ts.mqttClient.Publish("device/0102030405060708/command/up", 0, false, []byte(`{"fPort":10,"data":"AQID"}`))
	token.Wait()
	assert.NoError(token.Error())

	var qi storage.UplinkQueueItem
	var err error
	for i := 0; i < 50; i++ {
		qi, err = storage.DequeueUplink(context.Background(), ts.devEUI)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.NoError(err)
	assert.Equal(uint8(10), qi.FPort)
	assert.Equal([]byte{1, 2, 3}, qi.FRMPayload)
	assert.False(qi.Confirmed)
}

func TestBackend(t *testing.T) {
	if !test.MQTTEnabled() || !test.RedisEnabled() {
		t.Skip("TEST_MQTT_SERVER or TEST_REDIS_URL is not set")
	}

	suite.Run(t, new(BackendTestSuite))
}

func TestCommandTypeFromTopic(t *testing.T) {
	tests := []struct {
		Topic    string
		Expected string
	}{
		{"device/0102030405060708/command/up", "up"},
		{"up", "up"},
		{"device/0102030405060708/command/", ""},
	}

	for _, tst := range tests {
		t.Run(tst.Topic, func(t *testing.T) {
			assert := require.New(t)
			assert.Equal(tst.Expected, commandTypeFromTopic(tst.Topic))
		})
	}
}

func TestNewTLSConfig(t *testing.T) {
	assert := require.New(t)

	conf, err := newTLSConfig("", "", "")
	assert.NoError(err)
	assert.Nil(conf)

	_, err = newTLSConfig("/does/not/exist.pem", "", "")
	assert.Error(err)
}
