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

// Package capture implements a triggered streaming waveform capture.
//
// A driver fills small rotating working buffers and notifies about new
// samples. The fetch loop runs in its own goroutine, feeds every
// notification to the ingest engine which keeps only post-trigger samples,
// and opens a gate when the session ends. Only after the gate is open the
// capture buffers are calibrated and handed to a ResultSink.
package capture

import (
	"context"
	"sync"
	"time"

	"jinr.ru/greenlab/go-capture/pkg/log"
)

// Settings of a capture session. They are fixed for the life of a Capture.
type Settings struct {
	TotalSamples      int
	WorkingBufferSize int
	SampleInterval    time.Duration
	DownsampleRatio   uint32
	RatioMode         RatioMode
	Backoff           time.Duration
}

// Status is a progress view that can be taken while the session runs
type Status struct {
	Started      bool
	State        State
	NextWrite    int
	TotalSamples int
	Triggered    bool
}

type Capture[S Sample] struct {
	settings Settings
	limits   Limits
	channels [MaxChannels]ChannelConfig
	driver   AcquisitionDriver[S]
	engine   *Engine[S]
	token    *Token

	// OnNotify is passed to the fetch loop of every session
	OnNotify func(Outcome)

	mu       sync.Mutex
	gate     *Gate
	loop     *FetchLoop[S]
	interval time.Duration
}

// New validates the configuration and allocates the buffers.
// Every validation failure is a *ConfigurationError.
func New[S Sample](driver AcquisitionDriver[S], settings Settings, channels []ChannelConfig, limits Limits) (*Capture[S], error) {
	if driver == nil {
		return nil, configErrorf("acquisition driver is not set")
	}
	if settings.TotalSamples <= 0 {
		return nil, configErrorf("total samples must be positive, got %d", settings.TotalSamples)
	}
	if settings.WorkingBufferSize <= 0 {
		return nil, configErrorf("working buffer size must be positive, got %d", settings.WorkingBufferSize)
	}
	if settings.SampleInterval <= 0 {
		return nil, configErrorf("sample interval must be positive, got %s", settings.SampleInterval)
	}
	if settings.DownsampleRatio == 0 {
		settings.DownsampleRatio = 1
	}
	if settings.Backoff == 0 {
		settings.Backoff = DefaultBackoff
	}
	if settings.Backoff < MinBackoff || settings.Backoff > MaxBackoff {
		return nil, configErrorf("backoff %s outside [%s, %s]", settings.Backoff, MinBackoff, MaxBackoff)
	}
	if err := ValidateFullScale(limits.FullScaleCode); err != nil {
		return nil, err
	}

	c := &Capture[S]{
		settings: settings,
		limits:   limits,
		driver:   driver,
		token:    &Token{},
	}
	var seen, enabled ChannelSet
	for _, ch := range channels {
		if err := limits.ValidateChannel(ch); err != nil {
			return nil, err
		}
		if seen.Has(ch.Index) {
			return nil, configErrorf("channel %d configured twice", ch.Index)
		}
		seen = seen.With(ch.Index)
		c.channels[ch.Index] = ch
		if ch.Enabled {
			enabled = enabled.With(ch.Index)
		}
	}
	if enabled == 0 {
		return nil, configErrorf("no channel enabled")
	}
	c.engine = NewEngine[S](enabled, settings.WorkingBufferSize, settings.TotalSamples)
	return c, nil
}

func (c *Capture[S]) Settings() Settings {
	return c.settings
}

func (c *Capture[S]) Enabled() ChannelSet {
	return c.engine.Enabled()
}

// Start registers the working buffers, starts streaming and launches the
// fetch loop. ctx bounds the whole session, not only this call.
func (c *Capture[S]) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gate != nil {
		if !c.gate.IsOpen() {
			return ErrSessionActive
		}
		return ErrNeedsReset
	}

	mode := c.settings.RatioMode
	for _, ch := range c.engine.Enabled().Channels() {
		if err := c.driver.RegisterBuffer(ch, c.engine.Buffer(ch).Working, mode); err != nil {
			return &DriverFault{Op: "register buffer", Err: err}
		}
	}

	log.Info("Start streaming: interval: %s total samples: %d channels: %064b",
		c.settings.SampleInterval, c.settings.TotalSamples, uint64(c.engine.Enabled()))
	interval, err := c.driver.StartStreaming(c.settings.SampleInterval, c.settings.TotalSamples,
		c.settings.DownsampleRatio, mode)
	if err != nil {
		return &DriverFault{Op: "start streaming", Err: err}
	}
	if interval != c.settings.SampleInterval {
		log.Info("Driver adjusted sample interval: requested: %s actual: %s", c.settings.SampleInterval, interval)
	}

	c.interval = interval
	c.gate = NewGate()
	c.loop = NewFetchLoop[S](c.driver, c.engine, c.gate, c.token, c.settings.Backoff)
	c.loop.OnNotify = c.OnNotify
	c.loop.interval = interval

	loop := c.loop
	go loop.Run(ctx)
	return nil
}

// Cancel asks the fetch loop to stop. It returns immediately.
func (c *Capture[S]) Cancel() {
	c.token.Cancel()
}

func (c *Capture[S]) currentGate() *Gate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate
}

// Done is closed when the session ends. It returns nil before Start.
func (c *Capture[S]) Done() <-chan struct{} {
	g := c.currentGate()
	if g == nil {
		return nil
	}
	return g.Done()
}

// Wait blocks until the session ends. When ctx expires first the session is
// cancelled and Wait keeps waiting for the fetch loop to acknowledge, which
// takes at most one poll plus one backoff.
func (c *Capture[S]) Wait(ctx context.Context) (Result, error) {
	g := c.currentGate()
	if g == nil {
		return Result{}, ErrNotStarted
	}
	r, err := g.Wait(ctx)
	if err == nil {
		return r, nil
	}
	log.Warning("Capture wait expired: %s. Cancelling session.", err)
	c.token.Cancel()
	return g.Wait(context.Background())
}

func (c *Capture[S]) sampleIntervalNs() uint64 {
	ns := uint64(c.interval.Nanoseconds())
	if c.settings.RatioMode != RatioModeNone && c.settings.DownsampleRatio > 1 {
		ns *= uint64(c.settings.DownsampleRatio)
	}
	return ns
}

// Waveforms calibrates the capture buffers of a finished session. Only a
// completed session is calibrated; the buffers of a failed or cancelled
// session are discarded.
func (c *Capture[S]) Waveforms(r Result) ([]Waveform, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if r.State != StateCompleted {
		return nil, ErrSessionCancelled
	}
	g := c.currentGate()
	if g == nil || !g.IsOpen() {
		return nil, ErrSessionActive
	}

	n := r.Session.NextWrite
	var result []Waveform
	for _, ch := range c.engine.Enabled().Channels() {
		cfg := c.channels[ch]
		result = append(result, Waveform{
			Channel:          ch,
			Samples:          Calibrate(c.engine.Buffer(ch).Capture[:n], cfg.Range, c.limits.FullScaleCode),
			SampleIntervalNs: c.sampleIntervalNs(),
			TriggerIndex:     r.Session.TriggerOffset,
			Range:            cfg.Range,
			Coupling:         cfg.Coupling,
		})
	}
	return result, nil
}

// Deliver waits for the session, calibrates it and passes every channel to
// the sink. The first sink error stops the delivery.
func (c *Capture[S]) Deliver(ctx context.Context, sink ResultSink) (Result, error) {
	r, err := c.Wait(ctx)
	if err != nil {
		return r, err
	}
	waveforms, err := c.Waveforms(r)
	if err != nil {
		return r, err
	}
	for _, w := range waveforms {
		if err := sink.OnCaptureComplete(w); err != nil {
			log.Error("Result sink failed: channel: %d error: %s", w.Channel, err)
			return r, &SinkError{Channel: w.Channel, Err: err}
		}
	}
	return r, nil
}

// Reset makes a finished capture ready for the next Start
func (c *Capture[S]) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gate != nil && !c.gate.IsOpen() {
		return ErrSessionActive
	}
	c.engine.Reset()
	c.token.reset()
	c.gate = nil
	c.loop = nil
	c.interval = 0
	return nil
}

// Snapshot is safe to call while the session runs
func (c *Capture[S]) Snapshot() Status {
	c.mu.Lock()
	loop := c.loop
	c.mu.Unlock()

	st := Status{
		TotalSamples: c.settings.TotalSamples,
		NextWrite:    c.engine.Progress(),
		Triggered:    c.engine.HasTriggered(),
	}
	if loop != nil {
		st.Started = true
		st.State = loop.State()
	}
	return st
}
