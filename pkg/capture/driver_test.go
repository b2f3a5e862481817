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
	"errors"
	"sync"
	"time"
)

// step is one scripted PollLatest call
type step struct {
	count     int
	triggered bool
	triggerAt int
	autoStop  bool
	overflow  ChannelSet
	err       error
	empty     bool
}

// scriptDriver writes synthetic samples into the registered working
// buffers and replays the script one step per poll. When the script is
// exhausted every poll returns without data.
type scriptDriver struct {
	mu       sync.Mutex
	buffers  map[ChannelID][]int16
	script   []step
	pos      int
	cursor   int
	stream   int
	started  bool
	stops    int
	polls    int
	startErr error
	stopErr  error
	total    int
}

func newScriptDriver(script ...step) *scriptDriver {
	return &scriptDriver{
		buffers: make(map[ChannelID][]int16),
		script:  script,
	}
}

// sampleAt is the value of channel ch at absolute stream position pos
func sampleAt(ch ChannelID, pos int) int16 {
	return int16(int(ch)*10000 + pos%10000)
}

func (d *scriptDriver) RegisterBuffer(ch ChannelID, buf []int16, mode RatioMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers[ch] = buf
	return nil
}

func (d *scriptDriver) StartStreaming(interval time.Duration, total int, ratio uint32, mode RatioMode) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return 0, d.startErr
	}
	d.started = true
	d.total = total
	return interval, nil
}

func (d *scriptDriver) PollLatest(fn NotifyFunc) error {
	d.mu.Lock()
	d.polls++
	if d.pos >= len(d.script) {
		d.mu.Unlock()
		return nil
	}
	s := d.script[d.pos]
	d.pos++
	if s.err != nil || s.empty {
		d.mu.Unlock()
		return s.err
	}
	start := d.cursor
	for ch, buf := range d.buffers {
		for i := 0; i < s.count; i++ {
			buf[(start+i)%len(buf)] = sampleAt(ch, d.stream+i)
		}
	}
	size := 1
	for _, buf := range d.buffers {
		size = len(buf)
	}
	d.cursor = (d.cursor + s.count) % size
	d.stream += s.count
	d.mu.Unlock()

	fn(Notification{
		StartIndex: start,
		Count:      s.count,
		Overflow:   s.overflow,
		Triggered:  s.triggered,
		TriggerAt:  s.triggerAt,
		AutoStop:   s.autoStop,
	})
	return nil
}

func (d *scriptDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	d.started = false
	return d.stopErr
}

func (d *scriptDriver) stopCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

var errUnplugged = errors.New("device unplugged")
