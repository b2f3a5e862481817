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

package runner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-capture/pkg/capture"
	"jinr.ru/greenlab/go-capture/pkg/config"
	"jinr.ru/greenlab/go-capture/pkg/device"
	"jinr.ru/greenlab/go-capture/pkg/device/sim"
	"jinr.ru/greenlab/go-capture/pkg/store"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Capture.TotalSamples = 500
	cfg.Capture.WorkingBufferSize = 256
	cfg.Capture.BackoffMs = 1
	cfg.Device.Sim.BatchSize = 100
	cfg.Sink.EdfDir = filepath.Join(t.TempDir(), "edf")
	return cfg
}

func openStore(t *testing.T) *store.Store {
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "capture.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})
	return st
}

// silentDevice never triggers
func silentDevice(cfg *config.DeviceConfig) (device.Device, error) {
	return sim.NewDriver(sim.NewGenerator(0, 100), 64), nil
}

func TestSettingsAndChannels(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Capture.RatioMode = "decimate"
	cfg.Capture.DownsampleRatio = 4
	settings, err := Settings(cfg.Capture)
	require.NoError(t, err)
	assert.Equal(t, capture.RatioModeDecimate, settings.RatioMode)
	assert.Equal(t, time.Duration(config.DefaultIntervalNs), settings.SampleInterval)
	assert.Equal(t, time.Duration(config.DefaultBackoffMs)*time.Millisecond, settings.Backoff)

	cfg.Capture.RatioMode = "median"
	_, err = Settings(cfg.Capture)
	assert.IsType(t, &capture.ConfigurationError{}, err)

	channels, err := Channels([]*config.ChannelConfig{
		{Index: 3, Enabled: true, Coupling: "ac", Range: 2, AnalogOffset: 0.1},
	})
	require.NoError(t, err)
	assert.Equal(t, []capture.ChannelConfig{
		{Index: 3, Enabled: true, Coupling: capture.CouplingAC, Range: 2, AnalogOffset: 0.1},
	}, channels)

	_, err = Channels([]*config.ChannelConfig{{Index: 64}})
	assert.IsType(t, &capture.ConfigurationError{}, err)
	_, err = Channels([]*config.ChannelConfig{{Index: 0, Coupling: "GND"}})
	assert.IsType(t, &capture.ConfigurationError{}, err)
}

func TestRunWritesSinks(t *testing.T) {
	st := openStore(t)
	r := New(context.Background(), testConfig(t), st)

	report, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.True(t, report.Result.Completed())
	assert.Len(t, report.Waveforms, 2)
	assert.Equal(t, "completed", report.Record.State)
	assert.Equal(t, 500, report.Record.Captured)
	assert.Equal(t, []int{0, 1}, report.Record.Channels)
	assert.Len(t, report.Record.Files, 2)
	assert.FileExists(t, report.Record.Files[0])

	rec, err := st.Get(report.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.State)
	assert.Equal(t, "sim", rec.Device)
	w, err := st.Waveform(report.Record.ID, 1)
	require.NoError(t, err)
	assert.Len(t, w.Samples, 500)

	assert.Equal(t, report.Record, r.Status().Last)
	assert.False(t, r.Status().Active)
}

func TestRunOptionsOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sink.EdfDir = ""
	r := New(context.Background(), cfg, nil)
	report, err := r.Run(context.Background(), Options{TotalSamples: 120, SampleIntervalNs: 250})
	require.NoError(t, err)
	assert.Equal(t, 120, report.Record.Captured)
	assert.Equal(t, uint64(250), report.Record.SampleIntervalNs)
	assert.Empty(t, report.Record.Files)
	assert.Equal(t, uint64(250), report.Waveforms[0].SampleIntervalNs)
}

func TestRunTimeoutCancels(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.TimeoutMs = 50
	st := openStore(t)
	r := New(context.Background(), cfg, st)
	r.NewDevice = silentDevice

	report, err := r.Run(context.Background(), Options{})
	assert.Equal(t, capture.ErrSessionCancelled, err)
	assert.Equal(t, "cancelled", report.Record.State)
	assert.False(t, report.Record.Triggered)

	records, err := st.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cancelled", records[0].State)
}

func TestRunDriverFault(t *testing.T) {
	r := New(context.Background(), testConfig(t), nil)
	r.NewDevice = func(cfg *config.DeviceConfig) (device.Device, error) {
		d := sim.NewDriver(sim.NewGenerator(1000, 100), 64)
		d.FailAfter = 2
		return d, nil
	}
	report, err := r.Run(context.Background(), Options{})
	var fault *capture.DriverFault
	require.True(t, errors.As(err, &fault))
	assert.Contains(t, report.Record.Error, "Injected device fault")
	assert.Empty(t, report.Waveforms)
}

func TestStartBusyStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.TimeoutMs = 0
	r := New(context.Background(), cfg, nil)
	r.NewDevice = silentDevice

	_, err := r.Wait(context.Background())
	assert.Equal(t, ErrNoSession, err)
	assert.Equal(t, ErrNoSession, r.Stop())

	id, err := r.Start(Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = r.Start(Options{})
	assert.Equal(t, ErrBusy, err)

	st := r.Status()
	assert.True(t, st.Active)
	assert.Equal(t, id, st.ID)
	assert.Equal(t, 500, st.TotalSamples)
	assert.False(t, st.Triggered)

	require.NoError(t, r.Stop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = r.Wait(ctx)
	assert.Equal(t, capture.ErrSessionCancelled, err)

	st = r.Status()
	assert.False(t, st.Active)
	require.NotNil(t, st.Last)
	assert.Equal(t, id, st.Last.ID)
	assert.Equal(t, "cancelled", st.Last.State)

	// the runner accepts a new session once the previous one ended
	r.NewDevice = device.NewDevice
	_, err = r.Start(Options{})
	require.NoError(t, err)
	report, err := r.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, report.Result.Completed())
}

func TestPrepareErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.Channels = []*config.ChannelConfig{{Index: 0, Enabled: false}}
	r := New(context.Background(), cfg, nil)
	_, err := r.Run(context.Background(), Options{})
	assert.IsType(t, &capture.ConfigurationError{}, err)

	cfg = testConfig(t)
	cfg.Device.Kind = "usb"
	r = New(context.Background(), cfg, nil)
	_, err = r.Start(Options{})
	assert.Equal(t, device.ErrUnknownKind{Kind: "usb"}, err)
	assert.False(t, r.Status().Active)
}
