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

package sim

import (
	"math"
	"math/bits"

	"jinr.ru/greenlab/go-capture/pkg/capture"
)

const fullScale = math.MaxInt16

// Generator produces deterministic sine waveforms. Channel ch is shifted
// by ch/16 of a period relative to channel 0. The trigger is evaluated on
// channel 0 only.
type Generator struct {
	// Amplitude in ADC codes, values beyond full scale are clipped and
	// reported as over range
	Amplitude     int
	PeriodSamples int
	// TriggerLevel is crossed upwards by channel 0 to raise the trigger
	TriggerLevel int
	// TriggerAfter is the number of samples generated before the trigger is armed
	TriggerAfter int
	// AutoStopAfter stops generation after that many post-trigger samples, 0 disables it
	AutoStopAfter int

	position    int
	triggered   bool
	triggerPos  int
	postTrigger int
	stopped     bool
}

// Block describes the samples returned by one Next call
type Block struct {
	Start     int
	Count     int
	Triggered bool
	// TriggerAt is relative to Start
	TriggerAt int
	AutoStop  bool
	Overflow  capture.ChannelSet
}

func NewGenerator(amplitude, period int) *Generator {
	return &Generator{Amplitude: amplitude, PeriodSamples: period}
}

// Value returns the sample of the channel at the absolute position
// and whether it was clipped
func (g *Generator) Value(ch capture.ChannelID, pos int) (int16, bool) {
	if g.PeriodSamples <= 0 {
		return 0, false
	}
	phase := 2 * math.Pi * (float64(pos)/float64(g.PeriodSamples) + float64(ch)/16)
	v := math.Round(float64(g.Amplitude) * math.Sin(phase))
	switch {
	case v > fullScale:
		return fullScale, true
	case v < -fullScale:
		return -fullScale, true
	}
	return int16(v), false
}

func (g *Generator) crosses(pos int) bool {
	if pos < 1 || pos < g.TriggerAfter {
		return false
	}
	prev, _ := g.Value(0, pos-1)
	cur, _ := g.Value(0, pos)
	return int(prev) < g.TriggerLevel && int(cur) >= g.TriggerLevel
}

// Next advances the generator by at most n samples. After an auto stop
// every call returns an empty block with AutoStop set.
func (g *Generator) Next(n int, channels capture.ChannelSet) Block {
	b := Block{Start: g.position}
	if g.stopped {
		b.AutoStop = true
		return b
	}
	for i := 0; i < n; i++ {
		pos := g.position + i
		if !g.triggered && g.crosses(pos) {
			g.triggered = true
			g.triggerPos = pos
			b.Triggered = true
			b.TriggerAt = i
		}
		for v := uint64(channels); v != 0; v &= v - 1 {
			ch := capture.ChannelID(bits.TrailingZeros64(v))
			if _, clipped := g.Value(ch, pos); clipped {
				b.Overflow = b.Overflow.With(ch)
			}
		}
		b.Count++
		if g.triggered {
			g.postTrigger++
			if g.AutoStopAfter > 0 && g.postTrigger >= g.AutoStopAfter {
				g.stopped = true
				b.AutoStop = true
				break
			}
		}
	}
	g.position += b.Count
	return b
}

// Position is the absolute index of the next sample
func (g *Generator) Position() int {
	return g.position
}

// TriggerPosition returns the absolute index of the trigger sample
func (g *Generator) TriggerPosition() (int, bool) {
	return g.triggerPos, g.triggered
}

// Rewind restarts the waveform from position zero and re-arms the trigger
func (g *Generator) Rewind() {
	g.position = 0
	g.triggered = false
	g.triggerPos = 0
	g.postTrigger = 0
	g.stopped = false
}
