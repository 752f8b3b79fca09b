// Package nats implements a NATS integration backend.
package nats

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"text/template"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-classa-device/internal/config"
	"github.com/brocaar/chirpstack-classa-device/internal/integration"
	"github.com/brocaar/chirpstack-classa-device/internal/logging"
	"github.com/brocaar/lorawan"
)

var _ integration.Integration = &Backend{}

// Backend implements a NATS integration backend.
type Backend struct {
	wg sync.WaitGroup

	nc             *nats.Conn
	sub            *nats.Subscription
	devEUI         lorawan.EUI64
	eventSubject   *template.Template
	commandSubject string
}

// NewBackend creates a new Backend.
func NewBackend(c config.Config) (*Backend, error) {
	var err error
	conf := c.Integration.NATS

	b := Backend{
		devEUI: c.Device.DevEUI,
	}

	b.eventSubject, err = template.New("event").Parse(conf.EventSubjectTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "integration/nats: parse event subject template error")
	}

	commandTemplate, err := template.New("command").Parse(conf.CommandSubjectTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "integration/nats: parse command subject template error")
	}

	subject := bytes.NewBuffer(nil)
	if err := commandTemplate.Execute(subject, integration.CommandTopicContext{
		DevEUI:      b.devEUI,
		CommandType: "*",
	}); err != nil {
		return nil, errors.Wrap(err, "integration/nats: execute command subject template error")
	}
	b.commandSubject = subject.String()

	log.WithField("url", conf.URL).Info("integration/nats: connecting to nats server")
	b.nc, err = nats.Connect(conf.URL,
		nats.Name("chirpstack-classa-device"),
		nats.UserInfo(conf.Username, conf.Password),
		nats.ReconnectWait(conf.ReconnectInterval),
		nats.MaxReconnects(conf.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warning("integration/nats: disconnected from nats server")
			natsDisconnectCounter().Inc()
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("integration/nats: reconnected to nats server")
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "integration/nats: connect error")
	}

	log.WithField("subject", b.commandSubject).Info("integration/nats: subscribing to command subject")
	b.sub, err = b.nc.Subscribe(b.commandSubject, b.commandHandler)
	if err != nil {
		b.nc.Close()
		return nil, errors.Wrap(err, "integration/nats: subscribe error")
	}

	return &b, nil
}

// Close closes the backend.
func (b *Backend) Close() error {
	log.Info("integration/nats: closing backend")

	if err := b.sub.Unsubscribe(); err != nil {
		return errors.Wrapf(err, "integration/nats: unsubscribe from %s error", b.commandSubject)
	}

	log.Info("integration/nats: handling last messages")
	b.wg.Wait()

	if err := b.nc.Drain(); err != nil {
		return errors.Wrap(err, "integration/nats: drain connection error")
	}
	return nil
}

// PublishEvent publishes the given event.
func (b *Backend) PublishEvent(ctx context.Context, devEUI lorawan.EUI64, eventType string, v interface{}) error {
	bb, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "integration/nats: marshal event error")
	}

	subject := bytes.NewBuffer(nil)
	if err := b.eventSubject.Execute(subject, integration.EventTopicContext{
		DevEUI:    devEUI,
		EventType: eventType,
	}); err != nil {
		return errors.Wrap(err, "integration/nats: execute event subject template error")
	}

	log.WithFields(log.Fields{
		"subject": subject.String(),
		"ctx_id":  ctx.Value(logging.ContextIDKey),
	}).Info("integration/nats: publishing event")

	natsEventCounter(eventType).Inc()

	if err := b.nc.Publish(subject.String(), bb); err != nil {
		return errors.Wrap(err, "integration/nats: publish event error")
	}
	return nil
}

func (b *Backend) commandHandler(msg *nats.Msg) {
	b.wg.Add(1)
	defer b.wg.Done()

	parts := strings.Split(msg.Subject, ".")
	typ := parts[len(parts)-1]
	natsCommandCounter(typ).Inc()

	ctx, err := logging.WithContextID(context.Background())
	if err != nil {
		log.WithError(err).Error("integration/nats: create context id error")
	}

	log.WithFields(log.Fields{
		"subject": msg.Subject,
		"command": typ,
		"ctx_id":  ctx.Value(logging.ContextIDKey),
	}).Info("integration/nats: command received")

	if err := integration.HandleCommand(ctx, b.devEUI, typ, msg.Data); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"subject": msg.Subject,
			"command": typ,
			"ctx_id":  ctx.Value(logging.ContextIDKey),
		}).Error("integration/nats: handle command error")
	}
}
