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

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempConfig(t *testing.T) *Config {
	cfg := NewDefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), ConfigDir, ConfigFile))
	return cfg
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, NewDefaultConfig().Validate())
}

func TestPersistAndLoad(t *testing.T) {
	cfg := tempConfig(t)
	cfg.Capture.TotalSamples = 4096
	cfg.Capture.Channels = []*ChannelConfig{{Index: 3, Enabled: true, Coupling: "AC", Range: 2}}
	cfg.Device.Kind = DeviceKindUDP
	require.NoError(t, cfg.Persist(false))

	err := cfg.Persist(false)
	var exists ErrConfigFileExists
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, cfg.Path(), exists.Path)
	require.NoError(t, cfg.Persist(true))

	loaded := NewDefaultConfig()
	loaded.SetPath(cfg.Path())
	require.NoError(t, loaded.Load())
	assert.Equal(t, 4096, loaded.Capture.TotalSamples)
	assert.Equal(t, DeviceKindUDP, loaded.Device.Kind)
	require.Len(t, loaded.Capture.Channels, 1)
	assert.Equal(t, 3, loaded.Capture.Channels[0].Index)
	assert.Equal(t, "AC", loaded.Capture.Channels[0].Coupling)
	assert.Equal(t, 2.0, loaded.Capture.Channels[0].Range)
	assert.Equal(t, int32(DefaultFullScaleCode), loaded.Device.FullScaleCode)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg := tempConfig(t)
	require.NoError(t, cfg.Load())
	assert.Equal(t, NewDefaultConfig().Capture, cfg.Capture)
}

func TestLoadEnvOverride(t *testing.T) {
	cfg := tempConfig(t)
	require.NoError(t, cfg.Persist(false))

	t.Setenv("GOCAPTURE_DEVICE_KIND", "udp")
	t.Setenv("GOCAPTURE_API_PORT", "9100")
	require.NoError(t, cfg.Load())
	assert.Equal(t, DeviceKindUDP, cfg.Device.Kind)
	assert.Equal(t, 9100, cfg.Api.Port)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"total":    func(c *Config) { c.Capture.TotalSamples = 0 },
		"working":  func(c *Config) { c.Capture.WorkingBufferSize = -1 },
		"interval": func(c *Config) { c.Capture.SampleIntervalNs = 0 },
		"backoff":  func(c *Config) { c.Capture.BackoffMs = 50 },
		"channels": func(c *Config) { c.Capture.Channels = nil },
		"kind":     func(c *Config) { c.Device.Kind = "usb" },
		"sim":      func(c *Config) { c.Device.Sim = nil },
		"scale":    func(c *Config) { c.Device.FullScaleCode = 0 },
		"section":  func(c *Config) { c.Sink = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			mutate(cfg)
			var invalid ErrInvalidConfig
			assert.ErrorAs(t, cfg.Validate(), &invalid)
		})
	}
}

func TestMarshal(t *testing.T) {
	data, err := NewDefaultConfig().Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "totalSamples: 10000")
	assert.NotContains(t, string(data), "filepath")
}
