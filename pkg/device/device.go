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

package device

import (
	"context"
	"fmt"

	"jinr.ru/greenlab/go-capture/pkg/capture"
	"jinr.ru/greenlab/go-capture/pkg/config"
	"jinr.ru/greenlab/go-capture/pkg/device/netdrv"
	"jinr.ru/greenlab/go-capture/pkg/device/sim"
)

// Device is a 16 bit streaming digitizer
type Device interface {
	capture.AcquisitionDriver[int16]
	Name() string
}

// Listener is a device that needs a receive loop while it streams
type Listener interface {
	Listen(ctx context.Context) error
}

var (
	_ Device   = &sim.Driver{}
	_ Device   = &netdrv.Driver{}
	_ Listener = &netdrv.Driver{}
)

// ErrUnknownKind returned for a device kind with no driver
type ErrUnknownKind struct {
	Kind string
}

func (e ErrUnknownKind) Error() string {
	return fmt.Sprintf("Unknown device kind: %s", e.Kind)
}

// NewDevice creates the driver configured in the device section
func NewDevice(cfg *config.DeviceConfig) (Device, error) {
	switch cfg.Kind {
	case config.DeviceKindSim:
		s := cfg.Sim
		if s == nil {
			s = &config.SimConfig{}
		}
		g := sim.NewGenerator(s.Amplitude, s.PeriodSamples)
		g.TriggerLevel = s.TriggerLevel
		g.TriggerAfter = s.TriggerAfter
		g.AutoStopAfter = s.AutoStopAfter
		return sim.NewDriver(g, s.BatchSize), nil
	case config.DeviceKindUDP:
		return netdrv.New(cfg.Address, cfg.Port), nil
	}
	return nil, ErrUnknownKind{Kind: cfg.Kind}
}

// NewLimits returns the configured ranges or the default ones when the
// device section lists none
func NewLimits(cfg *config.DeviceConfig) capture.Limits {
	limits := capture.DefaultLimits()
	if cfg.FullScaleCode != 0 {
		limits.FullScaleCode = cfg.FullScaleCode
	}
	if len(cfg.Ranges) > 0 {
		limits.Ranges = make([]capture.RangeLimit, 0, len(cfg.Ranges))
		for _, r := range cfg.Ranges {
			limits.Ranges = append(limits.Ranges, capture.RangeLimit{
				Range:       r.Range,
				MaxOffsetDC: r.MaxOffsetDC,
				MaxOffsetAC: r.MaxOffsetAC,
			})
		}
	}
	return limits
}
