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

package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-capture/pkg/capture"
	"jinr.ru/greenlab/go-capture/pkg/config"
	"jinr.ru/greenlab/go-capture/pkg/runner"
	"jinr.ru/greenlab/go-capture/pkg/store"
)

const (
	TotalSamplesOptionName = "total-samples"
	IntervalOptionName     = "interval-ns"
	DeviceOptionName       = "device"
	EdfDirOptionName       = "edf-dir"
	NoStoreOptionName      = "no-store"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	var (
		opts    runner.Options
		kind    string
		edfDir  string
		noStore bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single capture session and write the waveforms",
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "" {
				cfg.Device.Kind = kind
			}
			if edfDir != "" {
				cfg.Sink.EdfDir = edfDir
			}
			if noStore {
				cfg.Sink.Store = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var st *store.Store
			if cfg.Sink.Store {
				var err error
				st, err = store.Open(ctx, cfg.DBPath)
				if err != nil {
					return err
				}
				defer st.Close()
			}

			report, err := runner.New(ctx, cfg, st).Run(ctx, opts)
			if report != nil {
				PrintReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&opts.TotalSamples, TotalSamplesOptionName, 0, "Post-trigger samples to capture. Overrides the config")
	cmd.Flags().Int64Var(&opts.SampleIntervalNs, IntervalOptionName, 0, "Sample interval in nanoseconds. Overrides the config")
	cmd.Flags().StringVar(&kind, DeviceOptionName, "",
		fmt.Sprintf("Device kind, %s or %s", config.DeviceKindSim, config.DeviceKindUDP))
	cmd.Flags().StringVar(&edfDir, EdfDirOptionName, "", "Directory for EDF files")
	cmd.Flags().BoolVar(&noStore, NoStoreOptionName, false, "Do not record the session in the database")
	return cmd
}

// PrintReport writes a short human readable summary of the session
func PrintReport(out io.Writer, report *runner.Report) {
	rec := report.Record
	fmt.Fprintf(out, "Session:   %s\n", rec.ID)
	fmt.Fprintf(out, "Device:    %s\n", rec.Device)
	fmt.Fprintf(out, "State:     %s\n", rec.State)
	if rec.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", rec.Error)
	}
	fmt.Fprintf(out, "Captured:  %d of %d samples\n", rec.Captured, rec.TotalSamples)
	fmt.Fprintf(out, "Trigger:   %t at %d\n", rec.Triggered, rec.TriggerOffset)
	if rec.OverflowCount > 0 {
		fmt.Fprintf(out, "Overflow:  %d truncations, %d samples dropped\n", rec.OverflowCount, rec.Dropped)
	}
	fmt.Fprintf(out, "Interval:  %dns\n", rec.SampleIntervalNs)
	for _, w := range report.Waveforms {
		lo, hi := span(w)
		fmt.Fprintf(out, "Channel %02d: %d samples, range +/-%gV %s, min %.4fV max %.4fV\n",
			w.Channel, len(w.Samples), w.Range, w.Coupling, lo, hi)
	}
	for _, f := range rec.Files {
		fmt.Fprintf(out, "File:      %s\n", f)
	}
}

func span(w capture.Waveform) (float64, float64) {
	if len(w.Samples) == 0 {
		return 0, 0
	}
	lo, hi := w.Samples[0], w.Samples[0]
	for _, v := range w.Samples[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
