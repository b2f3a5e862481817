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
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"time"

	"jinr.ru/greenlab/go-capture/pkg/capture"
	"jinr.ru/greenlab/go-capture/pkg/log"
)

var (
	ErrNotStreaming = errors.New("simulated device is not streaming")
	ErrNoBuffers    = errors.New("no buffers registered")
)

// ErrInjectedFault returned by PollLatest once FailAfter polls are served
type ErrInjectedFault struct {
	Poll int
}

func (e ErrInjectedFault) Error() string {
	return fmt.Sprintf("Injected device fault at poll %d", e.Poll)
}

// ErrBufferSize returned when registered buffers have different lengths
type ErrBufferSize struct {
	Channel capture.ChannelID
	Size    int
	Want    int
}

func (e ErrBufferSize) Error() string {
	return fmt.Sprintf("Buffer of channel %d has %d samples, other channels have %d", e.Channel, e.Size, e.Want)
}

// Driver is an in-process digitizer backed by a Generator
type Driver struct {
	Generator *Generator
	// BatchSize is the maximum number of samples per notification,
	// it is capped by the working buffer size
	BatchSize int
	// FailAfter makes every poll after that many polls fail, 0 disables it
	FailAfter int
	// BusyEvery makes every n-th poll return capture.ErrDriverBusy, 0 disables it
	BusyEvery int

	mu         sync.Mutex
	working    [capture.MaxChannels][]int16
	registered capture.ChannelSet
	size       int
	cursor     int
	polls      int
	streaming  bool
	stops      int
}

func NewDriver(g *Generator, batchSize int) *Driver {
	return &Driver{Generator: g, BatchSize: batchSize}
}

func (d *Driver) Name() string {
	return "sim"
}

func (d *Driver) RegisterBuffer(ch capture.ChannelID, buf []int16, mode capture.RatioMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(ch) >= capture.MaxChannels {
		return fmt.Errorf("channel %d out of range", ch)
	}
	if d.registered != 0 && len(buf) != d.size {
		return ErrBufferSize{Channel: ch, Size: len(buf), Want: d.size}
	}
	d.working[ch] = buf
	d.registered = d.registered.With(ch)
	d.size = len(buf)
	log.Debug("Sim device: registered buffer: channel: %d size: %d mode: %s", ch, len(buf), mode)
	return nil
}

func (d *Driver) StartStreaming(interval time.Duration, totalPostTrigger int, downsampleRatio uint32, mode capture.RatioMode) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.registered == 0 || d.size == 0 {
		return 0, ErrNoBuffers
	}
	d.Generator.Rewind()
	d.cursor = 0
	d.polls = 0
	d.streaming = true
	log.Info("Sim device: streaming started: interval: %s post trigger: %d ratio: %d mode: %s",
		interval, totalPostTrigger, downsampleRatio, mode)
	return interval, nil
}

func (d *Driver) PollLatest(fn capture.NotifyFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.streaming {
		return ErrNotStreaming
	}
	d.polls++
	if d.FailAfter > 0 && d.polls > d.FailAfter {
		return ErrInjectedFault{Poll: d.polls}
	}
	if d.BusyEvery > 0 && d.polls%d.BusyEvery == 0 {
		return capture.ErrDriverBusy
	}

	n := d.BatchSize
	if n <= 0 || n > d.size {
		n = d.size
	}
	block := d.Generator.Next(n, d.registered)
	for v := uint64(d.registered); v != 0; v &= v - 1 {
		ch := capture.ChannelID(bits.TrailingZeros64(v))
		buf := d.working[ch]
		for i := 0; i < block.Count; i++ {
			buf[(d.cursor+i)%d.size], _ = d.Generator.Value(ch, block.Start+i)
		}
	}

	start := d.cursor
	d.cursor = (d.cursor + block.Count) % d.size
	fn(capture.Notification{
		StartIndex: start,
		Count:      block.Count,
		Overflow:   block.Overflow,
		Triggered:  block.Triggered,
		TriggerAt:  block.TriggerAt,
		AutoStop:   block.AutoStop,
	})
	return nil
}

// Stop returns the device to the idle state, it is safe to call repeatedly
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streaming {
		log.Info("Sim device: streaming stopped after %d polls", d.polls)
	}
	d.streaming = false
	d.stops++
	return nil
}

// Stops returns how many times Stop was called
func (d *Driver) Stops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}
