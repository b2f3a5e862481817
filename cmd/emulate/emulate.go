/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package emulate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-capture/pkg/capture"
	"jinr.ru/greenlab/go-capture/pkg/config"
	"jinr.ru/greenlab/go-capture/pkg/device/netdrv"
	"jinr.ru/greenlab/go-capture/pkg/device/sim"
	"jinr.ru/greenlab/go-capture/pkg/log"
)

const (
	AddressOptionName  = "address"
	PortOptionName     = "port"
	FramesOptionName   = "frames"
	PeriodOptionName   = "period-ms"
	BatchOptionName    = "batch"
	AutoStopOptionName = "auto-stop"

	DefaultAddress  = "127.0.0.1"
	DefaultPeriodMs = 1
)

// NewCommand streams simulated sample frames to a udp device listener
func NewCommand(cfg *config.Config) *cobra.Command {
	var (
		address  string
		port     int
		frames   int
		periodMs int
		batch    int
		autoStop int
	)
	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Stream simulated digitizer frames over UDP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if periodMs <= 0 {
				return fmt.Errorf("--%s must be positive, got %d", PeriodOptionName, periodMs)
			}
			if port == 0 {
				port = cfg.Device.Port
			}
			s := cfg.Device.Sim
			if s == nil {
				s = &config.SimConfig{}
			}
			if batch <= 0 {
				batch = s.BatchSize
			}
			if batch <= 0 {
				return fmt.Errorf("batch size must be positive, got %d", batch)
			}

			var channels capture.ChannelSet
			for _, ch := range cfg.Capture.Channels {
				if ch.Enabled {
					channels = channels.With(capture.ChannelID(ch.Index))
				}
			}

			g := sim.NewGenerator(s.Amplitude, s.PeriodSamples)
			g.TriggerLevel = s.TriggerLevel
			g.TriggerAfter = s.TriggerAfter
			g.AutoStopAfter = s.AutoStopAfter
			if autoStop > 0 {
				g.AutoStopAfter = autoStop
			}

			sender, err := netdrv.Dial(address, port)
			if err != nil {
				return err
			}
			defer sender.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("Emulating %d channels to %s:%d", channels.Len(), address, port)
			err = netdrv.Emulate(ctx, sender, g, channels, batch, time.Duration(periodMs)*time.Millisecond, frames)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&address, AddressOptionName, DefaultAddress, "Address the capture is listening on")
	cmd.Flags().IntVar(&port, PortOptionName, 0, fmt.Sprintf("Port number. Default is device.port from the config, e.g. %d", config.DefaultStreamPort))
	cmd.Flags().IntVar(&frames, FramesOptionName, 0, "Number of frames to send. 0 means until interrupted or auto stop")
	cmd.Flags().IntVar(&periodMs, PeriodOptionName, DefaultPeriodMs, "Milliseconds between frames")
	cmd.Flags().IntVar(&batch, BatchOptionName, 0, "Samples per frame. Default is device.sim.batchSize")
	cmd.Flags().IntVar(&autoStop, AutoStopOptionName, 0, "Stop after this many post-trigger samples")
	return cmd
}
