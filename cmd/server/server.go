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

package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-capture/pkg/config"
	"jinr.ru/greenlab/go-capture/pkg/log"
	"jinr.ru/greenlab/go-capture/pkg/runner"
	srvcapture "jinr.ru/greenlab/go-capture/pkg/srv/capture"
	"jinr.ru/greenlab/go-capture/pkg/store"
)

const (
	AddressOptionName = "address"
	PortOptionName    = "port"

	shutdownWait = 3 * time.Second
)

func NewCommand(cfg *config.Config) *cobra.Command {
	var (
		address string
		port    int
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start capture API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if address != "" {
				cfg.Api.Address = address
			}
			if port != 0 {
				cfg.Api.Port = port
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

			r := runner.New(ctx, cfg, st)
			server, err := srvcapture.NewApiServer(ctx, cfg, r)
			if err != nil {
				return err
			}
			err = server.Run()
			if r.Stop() == nil {
				// let the session record itself before the store is closed
				waitCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
				if _, waitErr := r.Wait(waitCtx); waitErr != nil {
					log.Warning("Capture session ended with error: %s", waitErr)
				}
				cancel()
			}
			if errors.Is(err, context.Canceled) {
				log.Info("API server stopped")
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&address, AddressOptionName, "", fmt.Sprintf("Address to bind. E.g. %s", config.DefaultApiAddress))
	cmd.Flags().IntVar(&port, PortOptionName, 0, fmt.Sprintf("Port number to bind. E.g. %d", config.DefaultApiPort))
	return cmd
}
