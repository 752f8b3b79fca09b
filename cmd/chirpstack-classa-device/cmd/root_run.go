package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"

	"github.com/brocaar/chirpstack-classa-device/internal/band"
	"github.com/brocaar/chirpstack-classa-device/internal/classa"
	"github.com/brocaar/chirpstack-classa-device/internal/config"
	"github.com/brocaar/chirpstack-classa-device/internal/framelog"
	"github.com/brocaar/chirpstack-classa-device/internal/integration"
	"github.com/brocaar/chirpstack-classa-device/internal/integration/amqp"
	"github.com/brocaar/chirpstack-classa-device/internal/integration/mqtt"
	"github.com/brocaar/chirpstack-classa-device/internal/integration/nats"
	"github.com/brocaar/chirpstack-classa-device/internal/mac"
	"github.com/brocaar/chirpstack-classa-device/internal/mac/sim"
	"github.com/brocaar/chirpstack-classa-device/internal/monitoring"
	"github.com/brocaar/chirpstack-classa-device/internal/session"
	"github.com/brocaar/chirpstack-classa-device/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var (
	engine   mac.Engine
	sess     *session.Session
	loopDone = make(chan struct{})
	loopErr  = atomic.NewError(nil)
)

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tasks := []func() error{
		setLogLevel,
		setSyslog,
		setupBand,
		printStartMessage,
		setupMonitoring,
		setupStorage,
		setupEngine,
		setupIntegration,
		setupSession,
		startLoop(ctx),
	}

	for _, t := range tasks {
		if err := t(); err != nil {
			log.Fatal(err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	exitChan := make(chan struct{})
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sigChan:
		log.WithField("signal", s).Info("signal received")
	case <-loopDone:
		log.WithError(loopErr.Load()).Error("class-a loop halted")
	}

	go func() {
		log.Warning("stopping chirpstack-classa-device")
		cancel()
		<-loopDone

		if i := integration.Get(); i != nil {
			if err := i.Close(); err != nil {
				log.WithError(err).Error("close integration error")
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := monitoring.Shutdown(ctx); err != nil {
			log.WithError(err).Error("shutdown monitoring error")
		}

		exitChan <- struct{}{}
	}()
	select {
	case <-exitChan:
	case s := <-sigChan:
		log.WithField("signal", s).Info("signal received, stopping immediately")
	}

	return loopErr.Load()
}

func setLogLevel() error {
	log.SetLevel(log.Level(uint8(config.C.General.LogLevel)))
	if config.C.General.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}

func setupBand() error {
	if err := band.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup band error")
	}
	return nil
}

func printStartMessage() error {
	log.WithFields(log.Fields{
		"version":    version,
		"dev_eui":    config.C.Device.DevEUI,
		"activation": config.C.Device.Activation,
		"band":       config.C.Device.Band.Name,
		"engine":     config.C.Engine.Type,
	}).Info("starting ChirpStack Class-A Device")
	return nil
}

func setupMonitoring() error {
	if err := monitoring.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup monitoring error")
	}
	return nil
}

func setupStorage() error {
	if err := storage.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup storage error")
	}
	return nil
}

func setupEngine() error {
	switch config.C.Engine.Type {
	case "simulator":
		var store sim.ContextStore
		if config.C.Engine.Simulator.PersistContext {
			store = sim.NewRedisContextStore()
		}
		engine = sim.New(sim.NewConfig(config.C), store)
	default:
		return fmt.Errorf("unexpected engine type: %s", config.C.Engine.Type)
	}

	return nil
}

func setupIntegration() error {
	var err error
	var i integration.Integration

	switch config.C.Integration.Type {
	case "":
		log.Info("no integration configured")
		return nil
	case "mqtt":
		i, err = mqtt.NewBackend(config.C)
	case "amqp":
		i, err = amqp.NewBackend(config.C)
	case "nats":
		i, err = nats.NewBackend(config.C)
	default:
		return fmt.Errorf("unexpected integration type: %s", config.C.Integration.Type)
	}

	if err != nil {
		return errors.Wrap(err, "integration setup failed")
	}

	integration.Set(i)
	return nil
}

func setupSession() error {
	var err error
	sess, err = session.New(session.NewConfig(config.C), engine)
	if err != nil {
		return errors.Wrap(err, "new session error")
	}
	return nil
}

func startLoop(ctx context.Context) func() error {
	return func() error {
		conf, err := classa.NewConfig(config.C)
		if err != nil {
			return errors.Wrap(err, "class-a config error")
		}

		devEUI := config.C.Device.DevEUI
		handlers := classa.Handlers{
			framelog.NewHandler(devEUI, config.C.Monitoring.FrameLogMaxHistory),
		}
		if i := integration.Get(); i != nil {
			handlers = append(handlers, integration.NewHandler(devEUI, i))
		}

		if err := sess.Start(ctx); err != nil {
			return errors.Wrap(err, "start session error")
		}

		loop := classa.NewLoop(conf, sess, classa.NewStorageSource(devEUI), handlers)

		monitoring.RegisterHealthCheck("loop", func(ctx context.Context) error {
			return loopErr.Load()
		})

		log.Info("starting class-a loop")
		go func() {
			defer close(loopDone)

			err := loop.Run(ctx)
			if errors.Cause(err) != context.Canceled {
				loopErr.Store(err)
			}
		}()

		return nil
	}
}
