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

package capture

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"jinr.ru/greenlab/go-capture/pkg/command"
	"jinr.ru/greenlab/go-capture/pkg/config"
	"jinr.ru/greenlab/go-capture/pkg/runner"
)

const (
	TotalSamplesOptionName = "total-samples"
	IntervalOptionName     = "interval-ns"
)

// NewCommand groups the commands talking to a running capture server
func NewCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Control capture sessions of a running server",
	}
	cmd.AddCommand(NewStartCommand(cfg))
	cmd.AddCommand(NewStopCommand(cfg))
	cmd.AddCommand(NewStatusCommand(cfg))
	cmd.AddCommand(NewListCommand(cfg))
	cmd.AddCommand(NewGetCommand(cfg))
	cmd.AddCommand(NewDeleteCommand(cfg))
	return cmd
}

func printYaml(out io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func NewStartCommand(cfg *config.Config) *cobra.Command {
	var opts runner.Options
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a capture session",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := command.NewApiClient(cfg).CaptureStart(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started capture session %s\n", id)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.TotalSamples, TotalSamplesOptionName, 0, "Post-trigger samples to capture")
	cmd.Flags().Int64Var(&opts.SampleIntervalNs, IntervalOptionName, 0, "Sample interval in nanoseconds")
	return cmd
}

func NewStopCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running capture session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return command.NewApiClient(cfg).CaptureStop()
		},
	}
}

func NewStatusCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the progress of the running session",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := command.NewApiClient(cfg).CaptureStatus()
			if err != nil {
				return err
			}
			return printYaml(cmd.OutOrStdout(), status)
		},
	}
}

func NewListCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded capture sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := command.NewApiClient(cfg).CaptureList()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range records {
				fmt.Fprintf(out, "%s\t%s\t%s\t%d/%d\n",
					r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.State, r.Captured, r.TotalSamples)
			}
			return nil
		},
	}
}

func NewGetCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show the record of a capture session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := command.NewApiClient(cfg).CaptureGet(args[0])
			if err != nil {
				return err
			}
			return printYaml(cmd.OutOrStdout(), record)
		},
	}
}

func NewDeleteCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete the record and waveforms of a capture session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := command.NewApiClient(cfg).CaptureDelete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted capture session %s\n", args[0])
			return nil
		},
	}
}
