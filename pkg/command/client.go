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

package command

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/imroc/req"

	"jinr.ru/greenlab/go-capture/pkg/config"
	"jinr.ru/greenlab/go-capture/pkg/runner"
	srvcapture "jinr.ru/greenlab/go-capture/pkg/srv/capture"
	"jinr.ru/greenlab/go-capture/pkg/store"
)

// ErrApi returned when the server answers with a status other than 200
type ErrApi struct {
	Status  string
	Message string
}

func (e ErrApi) Error() string {
	if e.Message == "" {
		return e.Status
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

type ApiClient struct {
	*config.Config
	ApiPrefix string
}

func NewApiClient(cfg *config.Config) *ApiClient {
	return &ApiClient{
		Config:    cfg,
		ApiPrefix: fmt.Sprintf("http://%s:%d/api", cfg.Api.Address, cfg.Api.Port),
	}
}

func check(r *req.Resp) error {
	if r.Response().StatusCode != http.StatusOK {
		return ErrApi{Status: r.Response().Status, Message: strings.TrimSpace(r.String())}
	}
	return nil
}

// CaptureStart asks the server to start a session and returns its id
func (c *ApiClient) CaptureStart(opts runner.Options) (string, error) {
	r, err := req.Post(fmt.Sprintf("%s/capture/start", c.ApiPrefix), req.BodyJSON(opts))
	if err != nil {
		return "", err
	}
	if err := check(r); err != nil {
		return "", err
	}
	started := &srvcapture.StartResponse{}
	if err := r.ToJSON(started); err != nil {
		return "", err
	}
	return started.ID, nil
}

// CaptureStop cancels the running session
func (c *ApiClient) CaptureStop() error {
	r, err := req.Get(fmt.Sprintf("%s/capture/stop", c.ApiPrefix))
	if err != nil {
		return err
	}
	return check(r)
}

// CaptureStatus returns the progress of the running session and the last record
func (c *ApiClient) CaptureStatus() (*runner.Status, error) {
	r, err := req.Get(fmt.Sprintf("%s/capture/status", c.ApiPrefix))
	if err != nil {
		return nil, err
	}
	if err := check(r); err != nil {
		return nil, err
	}
	status := &runner.Status{}
	if err := r.ToJSON(status); err != nil {
		return nil, err
	}
	return status, nil
}

// CaptureList returns the stored session records
func (c *ApiClient) CaptureList() ([]*store.Record, error) {
	r, err := req.Get(fmt.Sprintf("%s/captures", c.ApiPrefix))
	if err != nil {
		return nil, err
	}
	if err := check(r); err != nil {
		return nil, err
	}
	var records []*store.Record
	if err := r.ToJSON(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// CaptureGet returns the stored record of a session
func (c *ApiClient) CaptureGet(id string) (*store.Record, error) {
	r, err := req.Get(fmt.Sprintf("%s/captures/%s", c.ApiPrefix, id))
	if err != nil {
		return nil, err
	}
	if err := check(r); err != nil {
		return nil, err
	}
	record := &store.Record{}
	if err := r.ToJSON(record); err != nil {
		return nil, err
	}
	return record, nil
}

// CaptureDelete removes a stored session with its waveforms
func (c *ApiClient) CaptureDelete(id string) error {
	r, err := req.Delete(fmt.Sprintf("%s/captures/%s", c.ApiPrefix, id))
	if err != nil {
		return err
	}
	return check(r)
}
