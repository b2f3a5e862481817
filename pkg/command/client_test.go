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
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-capture/pkg/config"
	"jinr.ru/greenlab/go-capture/pkg/runner"
	srvcapture "jinr.ru/greenlab/go-capture/pkg/srv/capture"
	"jinr.ru/greenlab/go-capture/pkg/store"
)

func TestApiClient(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Capture.TotalSamples = 200
	cfg.Capture.BackoffMs = 1
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "capture.db"))
	require.NoError(t, err)
	defer st.Close()

	r := runner.New(context.Background(), cfg, st)
	api, err := srvcapture.NewApiServer(context.Background(), cfg, r)
	require.NoError(t, err)
	ts := httptest.NewServer(api.Handler())
	defer ts.Close()

	c := NewApiClient(cfg)
	assert.Equal(t, "http://127.0.0.1:8002/api", c.ApiPrefix)
	c.ApiPrefix = ts.URL + "/api"

	err = c.CaptureStop()
	require.Error(t, err)
	apiErr, ok := err.(ErrApi)
	require.True(t, ok)
	assert.Equal(t, "404 Not Found", apiErr.Status)
	assert.Equal(t, runner.ErrNoSession.Error(), apiErr.Message)

	id, err := c.CaptureStart(runner.Options{TotalSamples: 150})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = r.Wait(ctx)
	require.NoError(t, err)

	status, err := c.CaptureStatus()
	require.NoError(t, err)
	assert.False(t, status.Active)
	require.NotNil(t, status.Last)
	assert.Equal(t, id, status.Last.ID)

	records, err := c.CaptureList()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 150, records[0].Captured)

	record, err := c.CaptureGet(id)
	require.NoError(t, err)
	assert.Equal(t, "completed", record.State)

	_, err = c.CaptureGet("missing")
	assert.IsType(t, ErrApi{}, err)

	require.NoError(t, c.CaptureDelete(id))
	records, err = c.CaptureList()
	require.NoError(t, err)
	assert.Empty(t, records)

	err = c.CaptureDelete(id)
	require.Error(t, err)
	assert.Equal(t, "404 Not Found", err.(ErrApi).Status)
}
