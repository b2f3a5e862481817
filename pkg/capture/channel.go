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
	"math"
	"math/bits"
	"strings"
)

const (
	// MaxChannels is the number of channels a ChannelSet can address
	MaxChannels = 64
)

// Sample is the raw ADC code type delivered by a driver
type Sample interface {
	~int8 | ~int16 | ~int32
}

type ChannelID uint8

// ChannelSet is a bitset of channel indices
type ChannelSet uint64

func (s ChannelSet) Has(ch ChannelID) bool {
	return ch < MaxChannels && s&(1<<ch) != 0
}

func (s ChannelSet) With(ch ChannelID) ChannelSet {
	return s | (1 << ch)
}

func (s ChannelSet) Len() int {
	return bits.OnesCount64(uint64(s))
}

// Channels returns the members of the set in ascending order
func (s ChannelSet) Channels() []ChannelID {
	result := make([]ChannelID, 0, s.Len())
	for v := uint64(s); v != 0; v &= v - 1 {
		result = append(result, ChannelID(bits.TrailingZeros64(v)))
	}
	return result
}

type Coupling int

const (
	CouplingDC Coupling = iota
	CouplingAC
)

func (c Coupling) String() string {
	if c == CouplingAC {
		return "AC"
	}
	return "DC"
}

// ParseCoupling accepts "AC" or "DC" in any case. Empty string means DC.
func ParseCoupling(s string) (Coupling, error) {
	switch strings.ToUpper(s) {
	case "", "DC":
		return CouplingDC, nil
	case "AC":
		return CouplingAC, nil
	}
	return CouplingDC, configErrorf("unknown coupling %q", s)
}

func (c Coupling) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Coupling) UnmarshalText(text []byte) error {
	v, err := ParseCoupling(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

type ChannelConfig struct {
	Index        ChannelID
	Enabled      bool
	Coupling     Coupling
	Range        float64 // +/- full scale, volts
	AnalogOffset float64 // volts
}

// RangeLimit is the analog offset window the device allows for one input range
type RangeLimit struct {
	Range       float64
	MaxOffsetDC float64
	MaxOffsetAC float64
}

// Limits describes what the digitizer accepts
type Limits struct {
	FullScaleCode int32
	Ranges        []RangeLimit
}

func (l Limits) rangeLimit(rng float64) (RangeLimit, bool) {
	for _, r := range l.Ranges {
		if math.Abs(r.Range-rng) < 1e-9 {
			return r, true
		}
	}
	return RangeLimit{}, false
}

// OffsetBounds returns the allowed analog offset window for the range and coupling
func (l Limits) OffsetBounds(rng float64, coupling Coupling) (float64, float64, error) {
	r, ok := l.rangeLimit(rng)
	if !ok {
		return 0, 0, configErrorf("range %gV is not supported by the device", rng)
	}
	limit := r.MaxOffsetDC
	if coupling == CouplingAC {
		limit = r.MaxOffsetAC
	}
	return -limit, limit, nil
}

// ValidateChannel checks the channel against the device limits
func (l Limits) ValidateChannel(c ChannelConfig) error {
	if c.Index >= MaxChannels {
		return configErrorf("channel index %d out of range [0, %d)", c.Index, MaxChannels)
	}
	if !c.Enabled {
		return nil
	}
	if c.Range <= 0 {
		return configErrorf("channel %d: range must be positive, got %g", c.Index, c.Range)
	}
	lo, hi, err := l.OffsetBounds(c.Range, c.Coupling)
	if err != nil {
		return err
	}
	if c.AnalogOffset < lo || c.AnalogOffset > hi {
		return configErrorf("channel %d: analog offset %gV outside [%g, %g] for range %gV %s",
			c.Index, c.AnalogOffset, lo, hi, c.Range, c.Coupling)
	}
	return nil
}

// ValidateFullScale checks the full scale code once at setup
func ValidateFullScale(fullScale int32) error {
	if fullScale == 0 {
		return configErrorf("full scale code must not be zero")
	}
	return nil
}

// DefaultLimits mirrors a 16 bit four channel USB digitizer
func DefaultLimits() Limits {
	return Limits{
		FullScaleCode: 32767,
		Ranges: []RangeLimit{
			{Range: 0.05, MaxOffsetDC: 0.25, MaxOffsetAC: 0.25},
			{Range: 0.1, MaxOffsetDC: 0.25, MaxOffsetAC: 0.25},
			{Range: 0.2, MaxOffsetDC: 0.25, MaxOffsetAC: 0.25},
			{Range: 0.5, MaxOffsetDC: 2.5, MaxOffsetAC: 2.5},
			{Range: 1, MaxOffsetDC: 2.5, MaxOffsetAC: 2.5},
			{Range: 2, MaxOffsetDC: 2.5, MaxOffsetAC: 2.5},
			{Range: 5, MaxOffsetDC: 20, MaxOffsetAC: 20},
			{Range: 10, MaxOffsetDC: 20, MaxOffsetAC: 20},
			{Range: 20, MaxOffsetDC: 20, MaxOffsetAC: 20},
		},
	}
}
