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
	"math/bits"
	"sync/atomic"

	"jinr.ru/greenlab/go-capture/pkg/log"
)

// Session is the bookkeeping of one capture
type Session struct {
	TotalSamples    int
	NextWrite       int
	Triggered       bool
	TriggerOffset   int
	OverflowCount   uint64
	Dropped         int
	AutoStop        bool
	ChannelOverflow ChannelSet
	Notifications   uint64
}

func (s Session) Complete() bool {
	return s.NextWrite == s.TotalSamples || s.AutoStop
}

// Outcome is what a single Ingest call did
type Outcome struct {
	Copied    int
	Complete  bool
	Discarded bool
	Truncated bool
	Dropped   int
	// Triggered is set only by the call that recorded the trigger
	Triggered       bool
	TriggerOffset   int
	ChannelOverflow ChannelSet
}

// Engine copies post-trigger samples from working buffers into capture
// buffers. It is driven from a single goroutine.
type Engine[S Sample] struct {
	enabled     ChannelSet
	workingSize int
	buffers     [MaxChannels]*ChannelBuffer[S]
	trigger     TriggerTracker
	session     Session

	// mirrors of the session for concurrent readers
	progress  atomic.Int64
	triggered atomic.Bool
}

// NewEngine allocates buffers for every enabled channel
func NewEngine[S Sample](enabled ChannelSet, workingSize, totalSamples int) *Engine[S] {
	e := &Engine[S]{enabled: enabled, workingSize: workingSize}
	for _, ch := range enabled.Channels() {
		e.buffers[ch] = NewChannelBuffer[S](workingSize, totalSamples)
	}
	e.session.TotalSamples = totalSamples
	return e
}

func (e *Engine[S]) Enabled() ChannelSet {
	return e.enabled
}

// Buffer returns the buffers of the channel or nil when it is disabled
func (e *Engine[S]) Buffer(ch ChannelID) *ChannelBuffer[S] {
	if !e.enabled.Has(ch) {
		return nil
	}
	return e.buffers[ch]
}

// Session returns a copy of the session state. It must not be called
// concurrently with Ingest.
func (e *Engine[S]) Session() Session {
	return e.session
}

// Progress is safe to call from any goroutine
func (e *Engine[S]) Progress() int {
	return int(e.progress.Load())
}

// HasTriggered is safe to call from any goroutine
func (e *Engine[S]) HasTriggered() bool {
	return e.triggered.Load()
}

// Ingest handles one driver notification. The trigger decision is taken
// once and applied to every enabled channel.
func (e *Engine[S]) Ingest(n Notification) Outcome {
	s := &e.session
	out := Outcome{}
	if n.Count <= 0 {
		// no data, only an auto stop is honoured
		e.applyAutoStop(n, &out)
		return out
	}
	s.Notifications++

	if n.Overflow != 0 {
		s.ChannelOverflow |= n.Overflow
		out.ChannelOverflow = n.Overflow
		log.Warning("Device reports over range on channels: %064b", uint64(n.Overflow))
	}

	triggered := n.Triggered
	if triggered && (n.TriggerAt < 0 || n.TriggerAt >= n.Count) {
		log.Warning("Ignore trigger at %d outside of a batch of %d samples", n.TriggerAt, n.Count)
		triggered = false
	}

	at := n.TriggerAt
	if fit := min(n.Count, s.TotalSamples-s.NextWrite, e.workingSize); triggered && !e.trigger.Triggered() && fit > 0 && at >= fit {
		// the trigger sample itself is dropped, keep the offset inside the capture
		log.Warning("Trigger at %d falls beyond the %d samples kept from the batch", at, fit)
		at = fit - 1
	}

	if offset, ok := e.trigger.Record(triggered, at, s.NextWrite); ok {
		s.Triggered = true
		s.TriggerOffset = offset
		out.Triggered = true
		out.TriggerOffset = offset
		e.triggered.Store(true)
		log.Info("Trigger recorded at capture offset %d", offset)
	}

	if !e.trigger.Triggered() {
		log.Debug("Discard pre-trigger batch: start: %d count: %d", n.StartIndex, n.Count)
		out.Discarded = true
		e.applyAutoStop(n, &out)
		return out
	}

	count := n.Count
	remaining := s.TotalSamples - s.NextWrite
	if count > remaining {
		out.Truncated = true
		out.Dropped = count - remaining
		s.OverflowCount++
		s.Dropped += out.Dropped
		log.Warning("Capture buffer overflow: %d samples dropped, %d truncations so far",
			out.Dropped, s.OverflowCount)
		count = remaining
	}

	if count > e.workingSize {
		excess := count - e.workingSize
		log.Error("Batch of %d samples is larger than working buffer of %d samples, %d samples dropped",
			count, e.workingSize, excess)
		if !out.Truncated {
			out.Truncated = true
			s.OverflowCount++
		}
		out.Dropped += excess
		s.Dropped += excess
		count = e.workingSize
	}

	copied := 0
	for v := uint64(e.enabled); v != 0; v &= v - 1 {
		copied = e.buffers[bits.TrailingZeros64(v)].copyOut(n.StartIndex, count, s.NextWrite)
	}

	s.NextWrite += copied
	e.progress.Store(int64(s.NextWrite))
	out.Copied = copied
	log.Debug("Ingested batch: start: %d count: %d copied: %d next write: %d",
		n.StartIndex, n.Count, copied, s.NextWrite)

	e.applyAutoStop(n, &out)
	return out
}

func (e *Engine[S]) applyAutoStop(n Notification, out *Outcome) {
	if n.AutoStop && !e.session.AutoStop {
		log.Info("Driver signalled auto stop at %d of %d samples", e.session.NextWrite, e.session.TotalSamples)
		e.session.AutoStop = true
	}
	out.Complete = e.session.Complete()
}

// Reset re-arms the trigger and clears the capture buffers
func (e *Engine[S]) Reset() {
	for _, ch := range e.enabled.Channels() {
		e.buffers[ch].clear()
	}
	e.trigger.Arm()
	e.session = Session{TotalSamples: e.session.TotalSamples}
	e.progress.Store(0)
	e.triggered.Store(false)
}
