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
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

type ApiConfig struct {
	Address string `json:"address" yaml:"address" mapstructure:"address"`
	Port    int    `json:"port" yaml:"port" mapstructure:"port"`
}

type ChannelConfig struct {
	Index        int     `json:"index" yaml:"index" mapstructure:"index"`
	Enabled      bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Coupling     string  `json:"coupling" yaml:"coupling" mapstructure:"coupling"`
	Range        float64 `json:"range" yaml:"range" mapstructure:"range"`
	AnalogOffset float64 `json:"analogOffset" yaml:"analogOffset" mapstructure:"analogOffset"`
}

type CaptureConfig struct {
	TotalSamples      int              `json:"totalSamples" yaml:"totalSamples" mapstructure:"totalSamples"`
	SampleIntervalNs  int64            `json:"sampleIntervalNs" yaml:"sampleIntervalNs" mapstructure:"sampleIntervalNs"`
	DownsampleRatio   uint32           `json:"downsampleRatio" yaml:"downsampleRatio" mapstructure:"downsampleRatio"`
	RatioMode         string           `json:"ratioMode" yaml:"ratioMode" mapstructure:"ratioMode"`
	WorkingBufferSize int              `json:"workingBufferSize" yaml:"workingBufferSize" mapstructure:"workingBufferSize"`
	BackoffMs         int              `json:"backoffMs" yaml:"backoffMs" mapstructure:"backoffMs"`
	TimeoutMs         int              `json:"timeoutMs" yaml:"timeoutMs" mapstructure:"timeoutMs"`
	Channels          []*ChannelConfig `json:"channels" yaml:"channels" mapstructure:"channels"`
}

type RangeConfig struct {
	Range       float64 `json:"range" yaml:"range" mapstructure:"range"`
	MaxOffsetDC float64 `json:"maxOffsetDC" yaml:"maxOffsetDC" mapstructure:"maxOffsetDC"`
	MaxOffsetAC float64 `json:"maxOffsetAC" yaml:"maxOffsetAC" mapstructure:"maxOffsetAC"`
}

// SimConfig drives the simulated digitizer
type SimConfig struct {
	Amplitude     int `json:"amplitude" yaml:"amplitude" mapstructure:"amplitude"`
	PeriodSamples int `json:"periodSamples" yaml:"periodSamples" mapstructure:"periodSamples"`
	BatchSize     int `json:"batchSize" yaml:"batchSize" mapstructure:"batchSize"`
	TriggerAfter  int `json:"triggerAfter" yaml:"triggerAfter" mapstructure:"triggerAfter"`
	TriggerLevel  int `json:"triggerLevel" yaml:"triggerLevel" mapstructure:"triggerLevel"`
	AutoStopAfter int `json:"autoStopAfter" yaml:"autoStopAfter" mapstructure:"autoStopAfter"`
}

type DeviceConfig struct {
	Kind          string         `json:"kind" yaml:"kind" mapstructure:"kind"`
	FullScaleCode int32          `json:"fullScaleCode" yaml:"fullScaleCode" mapstructure:"fullScaleCode"`
	Ranges        []*RangeConfig `json:"ranges,omitempty" yaml:"ranges,omitempty" mapstructure:"ranges"`
	// Address and Port are where the udp driver listens for sample frames
	Address string     `json:"address" yaml:"address" mapstructure:"address"`
	Port    int        `json:"port" yaml:"port" mapstructure:"port"`
	Sim     *SimConfig `json:"sim" yaml:"sim" mapstructure:"sim"`
}

type SinkConfig struct {
	EdfDir        string `json:"edfDir" yaml:"edfDir" mapstructure:"edfDir"`
	EdfRecordSize int    `json:"edfRecordSize" yaml:"edfRecordSize" mapstructure:"edfRecordSize"`
	Store         bool   `json:"store" yaml:"store" mapstructure:"store"`
}

type Config struct {
	LogLevel string         `json:"logLevel" yaml:"logLevel" mapstructure:"logLevel"`
	DBPath   string         `json:"dbPath" yaml:"dbPath" mapstructure:"dbPath"`
	Api      *ApiConfig     `json:"api" yaml:"api" mapstructure:"api"`
	Capture  *CaptureConfig `json:"capture" yaml:"capture" mapstructure:"capture"`
	Device   *DeviceConfig  `json:"device" yaml:"device" mapstructure:"device"`
	Sink     *SinkConfig    `json:"sink" yaml:"sink" mapstructure:"sink"`
	filepath string
}

// envKeys can be overridden with GOCAPTURE_<KEY> environment variables,
// dots replaced by underscores, e.g. GOCAPTURE_DEVICE_KIND=udp
var envKeys = []string{
	"logLevel",
	"dbPath",
	"api.address",
	"api.port",
	"capture.totalSamples",
	"capture.sampleIntervalNs",
	"capture.timeoutMs",
	"device.kind",
	"device.address",
	"device.port",
	"sink.edfDir",
	"sink.store",
}

func (c *Config) Path() string {
	return c.filepath
}

func (c *Config) SetPath(path string) {
	c.filepath = path
}

func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.filepath); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.filepath}
	}

	data, err := c.Marshal()
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.filepath)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(c.filepath, data, 0644)
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Load reads the config file on top of the current values. A missing file
// is not an error. Environment variables override the file.
func (c *Config) Load() error {
	v := viper.New()
	v.SetConfigFile(c.filepath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
			return err
		}
	}
	// lists from the file replace the defaults instead of being merged into them
	if c.Capture != nil && v.IsSet("capture.channels") {
		c.Capture.Channels = nil
	}
	if c.Device != nil && v.IsSet("device.ranges") {
		c.Device.Ranges = nil
	}
	return v.Unmarshal(c)
}

func (c *Config) Validate() error {
	if c.Capture == nil || c.Device == nil || c.Api == nil || c.Sink == nil {
		return ErrInvalidConfig{What: "api, capture, device and sink sections are required"}
	}
	if c.Capture.TotalSamples <= 0 {
		return ErrInvalidConfig{What: fmt.Sprintf("capture.totalSamples must be positive, got %d", c.Capture.TotalSamples)}
	}
	if c.Capture.WorkingBufferSize <= 0 {
		return ErrInvalidConfig{What: fmt.Sprintf("capture.workingBufferSize must be positive, got %d", c.Capture.WorkingBufferSize)}
	}
	if c.Capture.SampleIntervalNs <= 0 {
		return ErrInvalidConfig{What: fmt.Sprintf("capture.sampleIntervalNs must be positive, got %d", c.Capture.SampleIntervalNs)}
	}
	if c.Capture.BackoffMs < 1 || c.Capture.BackoffMs > 10 {
		return ErrInvalidConfig{What: fmt.Sprintf("capture.backoffMs must be within [1, 10], got %d", c.Capture.BackoffMs)}
	}
	if len(c.Capture.Channels) == 0 {
		return ErrInvalidConfig{What: "capture.channels is empty"}
	}
	switch c.Device.Kind {
	case DeviceKindSim:
		if c.Device.Sim == nil {
			return ErrInvalidConfig{What: "device.sim section is required for the sim device"}
		}
	case DeviceKindUDP:
	default:
		return ErrInvalidConfig{What: fmt.Sprintf("unknown device.kind %q", c.Device.Kind)}
	}
	if c.Device.FullScaleCode == 0 {
		return ErrInvalidConfig{What: "device.fullScaleCode must not be zero"}
	}
	return nil
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, ConfigFile)
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, DBFile)
}

func NewDefaultConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		DBPath:   DefaultDBPath(),
		Api: &ApiConfig{
			Address: DefaultApiAddress,
			Port:    DefaultApiPort,
		},
		Capture: &CaptureConfig{
			TotalSamples:      DefaultTotalSamples,
			SampleIntervalNs:  DefaultIntervalNs,
			DownsampleRatio:   1,
			RatioMode:         "none",
			WorkingBufferSize: DefaultWorkingSize,
			BackoffMs:         DefaultBackoffMs,
			TimeoutMs:         DefaultTimeoutMs,
			Channels: []*ChannelConfig{
				{Index: 0, Enabled: true, Coupling: "DC", Range: DefaultRange},
				{Index: 1, Enabled: true, Coupling: "DC", Range: DefaultRange},
			},
		},
		Device: &DeviceConfig{
			Kind:          DefaultDeviceKind,
			FullScaleCode: DefaultFullScaleCode,
			Address:       DefaultStreamAddress,
			Port:          DefaultStreamPort,
			Sim: &SimConfig{
				Amplitude:     DefaultSimAmplitude,
				PeriodSamples: DefaultSimPeriod,
				BatchSize:     DefaultSimBatchSize,
				TriggerAfter:  DefaultSimTriggerWait,
			},
		},
		Sink: &SinkConfig{
			EdfRecordSize: DefaultEdfRecordSize,
			Store:         true,
		},
		filepath: DefaultConfigPath(),
	}
}
