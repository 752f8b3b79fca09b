// Package amqp implements an AMQP / RabbitMQ integration backend.
package amqp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/brocaar/chirpstack-classa-device/internal/config"
	"github.com/brocaar/chirpstack-classa-device/internal/integration"
	"github.com/brocaar/chirpstack-classa-device/internal/logging"
	"github.com/brocaar/lorawan"
)

const exchange = "amq.topic"

var _ integration.Integration = &Backend{}

// Backend implements an AMQP integration backend.
type Backend struct {
	chPool *pool
	done   chan struct{}

	devEUI            lorawan.EUI64
	eventRoutingKey   *template.Template
	commandQueueName  string
	commandRoutingKey string
}

// NewBackend creates a new Backend.
func NewBackend(c config.Config) (*Backend, error) {
	var err error
	conf := c.Integration.AMQP

	b := Backend{
		devEUI:           c.Device.DevEUI,
		commandQueueName: conf.CommandQueueName,
		done:             make(chan struct{}),
	}

	b.eventRoutingKey, err = template.New("event").Parse(conf.EventRoutingKeyTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "integration/amqp: parse event routing-key template error")
	}

	commandTemplate, err := template.New("command").Parse(conf.CommandRoutingKeyTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "integration/amqp: parse command routing-key template error")
	}

	routingKey := bytes.NewBuffer(nil)
	if err := commandTemplate.Execute(routingKey, integration.CommandTopicContext{
		DevEUI:      b.devEUI,
		CommandType: "*",
	}); err != nil {
		return nil, errors.Wrap(err, "integration/amqp: execute command routing-key template error")
	}
	b.commandRoutingKey = routingKey.String()

	log.Info("integration/amqp: connecting to AMQP server")
	b.chPool, err = newPool(10, conf.URL)
	if err != nil {
		return nil, errors.Wrap(err, "integration/amqp: new amqp channel pool error")
	}

	if err := b.setupQueue(); err != nil {
		b.chPool.close()
		return nil, errors.Wrap(err, "integration/amqp: setup queue error")
	}

	go b.commandLoop()

	return &b, nil
}

// Close closes the backend.
func (b *Backend) Close() error {
	log.Info("integration/amqp: closing backend")
	err := b.chPool.close()
	<-b.done
	return err
}

// PublishEvent publishes the given event.
func (b *Backend) PublishEvent(ctx context.Context, devEUI lorawan.EUI64, eventType string, v interface{}) error {
	bb, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal event error")
	}

	routingKey := bytes.NewBuffer(nil)
	if err := b.eventRoutingKey.Execute(routingKey, integration.EventTopicContext{
		DevEUI:    devEUI,
		EventType: eventType,
	}); err != nil {
		return errors.Wrap(err, "execute event routing-key template error")
	}

	ch, err := b.chPool.acquire()
	if err != nil {
		return errors.Wrap(err, "get amqp channel from pool error")
	}
	defer ch.release()

	log.WithFields(log.Fields{
		"dev_eui":     devEUI,
		"event":       eventType,
		"routing_key": routingKey.String(),
		"ctx_id":      ctx.Value(logging.ContextIDKey),
	}).Info("integration/amqp: publishing event")

	amqpEventCounter(eventType).Inc()

	err = ch.Publish(
		exchange,
		routingKey.String(),
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        bb,
		},
	)
	if err != nil {
		ch.markBroken()
		return errors.Wrap(err, "publish event error")
	}

	return nil
}

func (b *Backend) setupQueue() error {
	ch, err := b.chPool.acquire()
	if err != nil {
		return errors.Wrap(err, "open channel error")
	}
	defer ch.release()

	if err := b.declareQueue(ch); err != nil {
		ch.markBroken()
		return err
	}
	return nil
}

func (b *Backend) declareQueue(ch *channel) error {
	_, err := ch.QueueDeclare(
		b.commandQueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "declare queue error")
	}

	err = ch.QueueBind(
		b.commandQueueName,
		b.commandRoutingKey,
		exchange,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "bind queue error")
	}

	return nil
}

func (b *Backend) commandLoop() {
	defer close(b.done)

	gen := b.chPool.generation()

	for {
		err := func() error {
			ch, err := b.chPool.acquire()
			if err != nil {
				return errors.Wrap(err, "get amqp channel from pool error")
			}
			defer ch.release()

			// the queue might be gone together with the previous connection
			if ch.gen != gen {
				if err := b.declareQueue(ch); err != nil {
					ch.markBroken()
					return errors.Wrap(err, "setup queue error")
				}
				gen = ch.gen
			}

			log.Info("integration/amqp: start consuming device commands")

			msgs, err := ch.Consume(
				b.commandQueueName,
				"",
				true,
				false,
				false,
				false,
				nil,
			)
			if err != nil {
				ch.markBroken()
				return errors.Wrap(err, "register consumer error")
			}

			for msg := range msgs {
				b.handleCommand(msg)
			}

			return nil
		}()
		if err != nil {
			if errors.Cause(err) == errClosed {
				return
			}

			log.WithError(err).Error("integration/amqp: command loop error")
			time.Sleep(redialBackoff)
		}
	}
}

func (b *Backend) handleCommand(msg amqp.Delivery) {
	routing := strings.Split(msg.RoutingKey, ".")
	typ := routing[len(routing)-1]
	amqpCommandCounter(typ).Inc()

	ctx, err := logging.WithContextID(context.Background())
	if err != nil {
		log.WithError(err).Error("integration/amqp: create context id error")
	}

	log.WithFields(log.Fields{
		"routing_key": msg.RoutingKey,
		"command":     typ,
		"ctx_id":      ctx.Value(logging.ContextIDKey),
	}).Info("integration/amqp: command received")

	if err := integration.HandleCommand(ctx, b.devEUI, typ, msg.Body); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"command":     typ,
			"routing_key": msg.RoutingKey,
			"ctx_id":      ctx.Value(logging.ContextIDKey),
		}).Error("integration/amqp: handle command error")
	}
}
