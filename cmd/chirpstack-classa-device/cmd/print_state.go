package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brocaar/chirpstack-classa-device/internal/config"
	"github.com/brocaar/chirpstack-classa-device/internal/framelog"
	"github.com/brocaar/chirpstack-classa-device/internal/storage"
	"github.com/brocaar/lorawan"
)

var printStateCmd = &cobra.Command{
	Use:     "print-state",
	Short:   "Print the persisted device context and frame-log as JSON (for debugging)",
	Example: `chirpstack-classa-device print-state 0102030405060708`,
	Run: func(cmd *cobra.Command, args []string) {
		devEUI := config.C.Device.DevEUI
		if len(args) == 1 {
			if err := devEUI.UnmarshalText([]byte(args[0])); err != nil {
				log.WithError(err).Fatal("decode DevEUI error")
			}
		}

		if err := storage.Setup(config.C); err != nil {
			log.Fatal(err)
		}

		b, err := deviceState(context.Background(), devEUI, config.C.Monitoring.FrameLogMaxHistory)
		if err != nil {
			log.WithError(err).Fatal("get device state error")
		}

		fmt.Println(string(b))
	},
}

type deviceStateOutput struct {
	Context  *storage.DeviceContext `json:"context"`
	FrameLog []framelog.LogEntry    `json:"frameLog"`
}

func deviceState(ctx context.Context, devEUI lorawan.EUI64, history int64) ([]byte, error) {
	var out deviceStateOutput

	dc, err := storage.GetDeviceContext(ctx, devEUI)
	if err != nil && errors.Cause(err) != storage.ErrDoesNotExist {
		return nil, errors.Wrap(err, "get device context error")
	}
	if err == nil {
		out.Context = &dc
	}

	if history > 0 {
		out.FrameLog, err = framelog.GetLogHistoryForDevice(ctx, devEUI, history)
		if err != nil {
			return nil, errors.Wrap(err, "get frame-log error")
		}
	}

	return json.MarshalIndent(out, "", "    ")
}
