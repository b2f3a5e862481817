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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"jinr.ru/greenlab/go-capture/pkg/capture"
	"jinr.ru/greenlab/go-capture/pkg/config"
	"jinr.ru/greenlab/go-capture/pkg/log"
	"jinr.ru/greenlab/go-capture/pkg/runner"
	"jinr.ru/greenlab/go-capture/pkg/store"
)

const shutdownTimeout = 5 * time.Second

type StartResponse struct {
	ID string `json:"id"`
}

type ApiServer struct {
	context.Context
	*config.Config
	*mux.Router
	runner *runner.Runner
}

func NewApiServer(ctx context.Context, cfg *config.Config, r *runner.Runner) (*ApiServer, error) {
	log.Info("Initializing API server with address: %s port: %d", cfg.Api.Address, cfg.Api.Port)

	s := &ApiServer{
		Context: ctx,
		Config:  cfg,
		runner:  r,
	}
	s.configureRouter()
	return s, nil
}

// Handler is the router wrapped with access logging and panic recovery
func (s *ApiServer) Handler() http.Handler {
	recovery := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))
	return handlers.CombinedLoggingHandler(log.Writer(), recovery(s.Router))
}

// Run serves the API until the context is done
func (s *ApiServer) Run() error {
	log.Debug("Starting API server: address: %s port: %d", s.Config.Api.Address, s.Config.Api.Port)
	httpServer := &http.Server{
		Handler: s.Handler(),
		Addr:    fmt.Sprintf("%s:%d", s.Config.Api.Address, s.Config.Api.Port),
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case <-s.Context.Done():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return err
		}
		return s.Context.Err()
	case err := <-errChan:
		return err
	}
}

func (s *ApiServer) configureRouter() {
	s.Router = mux.NewRouter()
	subRouter := s.Router.PathPrefix("/api").Subrouter()
	subRouter.HandleFunc("/capture/start", s.handleStart()).Methods("POST")
	subRouter.HandleFunc("/capture/stop", s.handleStop()).Methods("GET")
	subRouter.HandleFunc("/capture/status", s.handleStatus()).Methods("GET")
	subRouter.HandleFunc("/captures", s.handleList()).Methods("GET")
	subRouter.HandleFunc("/captures/{id}", s.handleGet()).Methods("GET")
	subRouter.HandleFunc("/captures/{id}", s.handleDelete()).Methods("DELETE")
	subRouter.HandleFunc("/captures/{id}/waveforms/{channel:[0-9]+}", s.handleWaveform()).Methods("GET")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Error while encoding response: %s", err)
	}
}

func statusCode(err error) int {
	var configErr *capture.ConfigurationError
	var notFound store.ErrNotFound
	switch {
	case errors.Is(err, runner.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, runner.ErrNoSession), errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &configErr):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func (s *ApiServer) handleStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := runner.Options{}
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && err != io.EOF {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Debug("Handling capture start request: total samples: %d interval: %dns",
			opts.TotalSamples, opts.SampleIntervalNs)

		id, err := s.runner.Start(opts)
		if err != nil {
			http.Error(w, err.Error(), statusCode(err))
			return
		}
		writeJSON(w, StartResponse{ID: id})
	}
}

func (s *ApiServer) handleStop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Handling capture stop request")
		if err := s.runner.Stop(); err != nil {
			http.Error(w, err.Error(), statusCode(err))
		}
	}
}

func (s *ApiServer) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.runner.Status())
	}
}

func (s *ApiServer) store(w http.ResponseWriter) *store.Store {
	if s.runner.Store == nil {
		http.Error(w, "Capture history is disabled", http.StatusServiceUnavailable)
	}
	return s.runner.Store
}

func (s *ApiServer) handleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.store(w)
		if st == nil {
			return
		}
		records, err := st.List()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []*store.Record{}
		}
		writeJSON(w, records)
	}
}

func (s *ApiServer) handleGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.store(w)
		if st == nil {
			return
		}
		record, err := st.Get(mux.Vars(r)["id"])
		if err != nil {
			http.Error(w, err.Error(), statusCode(err))
			return
		}
		writeJSON(w, record)
	}
}

func (s *ApiServer) handleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.store(w)
		if st == nil {
			return
		}
		id := mux.Vars(r)["id"]
		if status := s.runner.Status(); status.Active && status.ID == id {
			http.Error(w, runner.ErrBusy.Error(), http.StatusConflict)
			return
		}
		log.Info("Deleting capture session %s", id)
		if err := st.Delete(id); err != nil {
			http.Error(w, err.Error(), statusCode(err))
		}
	}
}

func (s *ApiServer) handleWaveform() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.store(w)
		if st == nil {
			return
		}
		vars := mux.Vars(r)
		ch, err := strconv.ParseUint(vars["channel"], 10, 8)
		if err != nil || ch >= capture.MaxChannels {
			http.Error(w, fmt.Sprintf("Invalid channel: %s", vars["channel"]), http.StatusBadRequest)
			return
		}
		waveform, err := st.Waveform(vars["id"], capture.ChannelID(ch))
		if err != nil {
			http.Error(w, err.Error(), statusCode(err))
			return
		}
		writeJSON(w, waveform)
	}
}
