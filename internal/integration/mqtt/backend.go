// Package mqtt implements a MQTT integration backend.
package mqtt

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"io/ioutil"
	"strings"
	"sync"
	"text/template"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-classa-device/internal/config"
	"github.com/brocaar/chirpstack-classa-device/internal/integration"
	"github.com/brocaar/chirpstack-classa-device/internal/logging"
	"github.com/brocaar/lorawan"
)

var _ integration.Integration = &Backend{}

// Backend implements a MQTT integration backend.
type Backend struct {
	wg sync.WaitGroup

	conn          paho.Client
	devEUI        lorawan.EUI64
	qos           uint8
	eventTemplate *template.Template
	commandTopic  string
}

// NewBackend creates a new Backend.
func NewBackend(c config.Config) (*Backend, error) {
	var err error
	conf := c.Integration.MQTT

	b := Backend{
		devEUI: c.Device.DevEUI,
		qos:    conf.QOS,
	}

	b.eventTemplate, err = template.New("event").Parse(conf.EventTopicTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "integration/mqtt: parse event topic template error")
	}

	commandTemplate, err := template.New("command").Parse(conf.CommandTopicTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "integration/mqtt: parse command topic template error")
	}

	topic := bytes.NewBuffer(nil)
	if err := commandTemplate.Execute(topic, integration.CommandTopicContext{
		DevEUI:      b.devEUI,
		CommandType: "+",
	}); err != nil {
		return nil, errors.Wrap(err, "integration/mqtt: execute command topic template error")
	}
	b.commandTopic = topic.String()

	opts := paho.NewClientOptions()
	opts.AddBroker(conf.Server)
	opts.SetUsername(conf.Username)
	opts.SetPassword(conf.Password)
	opts.SetCleanSession(conf.CleanSession)
	opts.SetClientID(conf.ClientID)
	opts.SetOnConnectHandler(b.onConnected)
	opts.SetConnectionLostHandler(b.onConnectionLost)
	if conf.MaxReconnectInterval != 0 {
		opts.SetMaxReconnectInterval(conf.MaxReconnectInterval)
	}

	tlsconfig, err := newTLSConfig(conf.CACert, conf.TLSCert, conf.TLSKey)
	if err != nil {
		return nil, errors.Wrap(err, "integration/mqtt: load tls configuration error")
	}
	if tlsconfig != nil {
		opts.SetTLSConfig(tlsconfig)
	}

	log.WithField("server", conf.Server).Info("integration/mqtt: connecting to mqtt broker")
	b.conn = paho.NewClient(opts)
	for {
		if token := b.conn.Connect(); token.Wait() && token.Error() != nil {
			log.Errorf("integration/mqtt: connecting to mqtt broker failed, will retry in 2s: %s", token.Error())
			time.Sleep(2 * time.Second)
		} else {
			break
		}
	}

	return &b, nil
}

// Close closes the backend.
func (b *Backend) Close() error {
	log.Info("integration/mqtt: closing backend")

	log.WithField("topic", b.commandTopic).Info("integration/mqtt: unsubscribing from command topic")
	if token := b.conn.Unsubscribe(b.commandTopic); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "integration/mqtt: unsubscribe from %s error", b.commandTopic)
	}

	log.Info("integration/mqtt: handling last messages")
	b.wg.Wait()
	b.conn.Disconnect(250)
	return nil
}

// PublishEvent publishes the given event.
func (b *Backend) PublishEvent(ctx context.Context, devEUI lorawan.EUI64, eventType string, v interface{}) error {
	bb, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "integration/mqtt: marshal event error")
	}

	topic := bytes.NewBuffer(nil)
	if err := b.eventTemplate.Execute(topic, integration.EventTopicContext{
		DevEUI:    devEUI,
		EventType: eventType,
	}); err != nil {
		return errors.Wrap(err, "integration/mqtt: execute event topic template error")
	}

	log.WithFields(log.Fields{
		"topic":  topic.String(),
		"qos":    b.qos,
		"ctx_id": ctx.Value(logging.ContextIDKey),
	}).Info("integration/mqtt: publishing event")

	mqttEventCounter(eventType).Inc()

	if token := b.conn.Publish(topic.String(), b.qos, false, bb); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "integration/mqtt: publish event error")
	}
	return nil
}

func (b *Backend) commandHandler(c paho.Client, msg paho.Message) {
	b.wg.Add(1)
	defer b.wg.Done()

	commandType := commandTypeFromTopic(msg.Topic())
	mqttCommandCounter(commandType).Inc()

	ctx, err := logging.WithContextID(context.Background())
	if err != nil {
		log.WithError(err).Error("integration/mqtt: create context id error")
	}

	log.WithFields(log.Fields{
		"topic":   msg.Topic(),
		"command": commandType,
		"ctx_id":  ctx.Value(logging.ContextIDKey),
	}).Info("integration/mqtt: command received")

	if err := integration.HandleCommand(ctx, b.devEUI, commandType, msg.Payload()); err != nil {
		log.WithFields(log.Fields{
			"command":     commandType,
			"data_base64": base64.StdEncoding.EncodeToString(msg.Payload()),
			"ctx_id":      ctx.Value(logging.ContextIDKey),
		}).WithError(err).Error("integration/mqtt: handle command error")
	}
}

func (b *Backend) onConnected(c paho.Client) {
	log.Info("integration/mqtt: connected to mqtt broker")
	mqttConnectCounter().Inc()

	for {
		log.WithFields(log.Fields{
			"topic": b.commandTopic,
			"qos":   b.qos,
		}).Info("integration/mqtt: subscribing to command topic")
		if token := c.Subscribe(b.commandTopic, b.qos, b.commandHandler); token.Wait() && token.Error() != nil {
			log.WithFields(log.Fields{
				"topic": b.commandTopic,
				"qos":   b.qos,
			}).Errorf("integration/mqtt: subscribe error: %s", token.Error())
			time.Sleep(time.Second)
			continue
		}
		break
	}
}

func (b *Backend) onConnectionLost(c paho.Client, reason error) {
	log.Errorf("integration/mqtt: mqtt connection error: %s", reason)
	mqttDisconnectCounter().Inc()
}

func commandTypeFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	return parts[len(parts)-1]
}

func newTLSConfig(cafile, certFile, certKeyFile string) (*tls.Config, error) {
	if cafile == "" && certFile == "" && certKeyFile == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{}

	if cafile != "" {
		cacert, err := ioutil.ReadFile(cafile)
		if err != nil {
			return nil, errors.Wrap(err, "read ca certificate error")
		}
		certpool := x509.NewCertPool()
		certpool.AppendCertsFromPEM(cacert)

		tlsConfig.RootCAs = certpool
	}

	if certFile != "" && certKeyFile != "" {
		kp, err := tls.LoadX509KeyPair(certFile, certKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "load tls key-pair error")
		}
		tlsConfig.Certificates = []tls.Certificate{kp}
	}

	return tlsConfig, nil
}
