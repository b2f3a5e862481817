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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"jinr.ru/greenlab/go-capture/pkg/capture"
	"jinr.ru/greenlab/go-capture/pkg/config"
	"jinr.ru/greenlab/go-capture/pkg/device"
	"jinr.ru/greenlab/go-capture/pkg/log"
	"jinr.ru/greenlab/go-capture/pkg/sink"
	"jinr.ru/greenlab/go-capture/pkg/sink/edfsink"
	"jinr.ru/greenlab/go-capture/pkg/store"
)

var (
	// ErrBusy returned when a session is started while another one runs
	ErrBusy = errors.New("capture session is already running")
	// ErrNoSession returned when there is no running session to stop
	ErrNoSession = errors.New("no capture session is running")
)

// Options override the capture section of the configuration for one session
type Options struct {
	TotalSamples     int   `json:"totalSamples,omitempty"`
	SampleIntervalNs int64 `json:"sampleIntervalNs,omitempty"`
}

type Report struct {
	Record    *store.Record
	Result    capture.Result
	Waveforms []capture.Waveform
}

// Status is the view of the runner exposed by the API
type Status struct {
	ID           string        `json:"id,omitempty"`
	Active       bool          `json:"active"`
	State        string        `json:"state,omitempty"`
	NextWrite    int           `json:"nextWrite"`
	TotalSamples int           `json:"totalSamples"`
	Triggered    bool          `json:"triggered"`
	Last         *store.Record `json:"last,omitempty"`
}

type session struct {
	id      string
	dev     device.Device
	capture *capture.Capture[int16]
	record  *store.Record
	memory  *sink.Memory
	edf     *edfsink.Sink
	done    chan struct{}
	report  *Report
	err     error
}

// Runner runs one capture session at a time
type Runner struct {
	context.Context
	*config.Config
	// Store is optional, sessions are not recorded without it
	Store     *store.Store
	NewDevice func(cfg *config.DeviceConfig) (device.Device, error)

	seq    atomic.Uint32
	mu     sync.Mutex
	active *session
	recent *session
	last   *store.Record
}

func New(ctx context.Context, cfg *config.Config, st *store.Store) *Runner {
	return &Runner{
		Context:   ctx,
		Config:    cfg,
		Store:     st,
		NewDevice: device.NewDevice,
	}
}

// Settings converts the capture section into session settings
func Settings(cfg *config.CaptureConfig) (capture.Settings, error) {
	mode, err := capture.ParseRatioMode(cfg.RatioMode)
	if err != nil {
		return capture.Settings{}, err
	}
	return capture.Settings{
		TotalSamples:      cfg.TotalSamples,
		WorkingBufferSize: cfg.WorkingBufferSize,
		SampleInterval:    time.Duration(cfg.SampleIntervalNs),
		DownsampleRatio:   cfg.DownsampleRatio,
		RatioMode:         mode,
		Backoff:           time.Duration(cfg.BackoffMs) * time.Millisecond,
	}, nil
}

// Channels converts the channel list of the capture section
func Channels(channels []*config.ChannelConfig) ([]capture.ChannelConfig, error) {
	result := make([]capture.ChannelConfig, 0, len(channels))
	for _, ch := range channels {
		if ch.Index < 0 || ch.Index >= capture.MaxChannels {
			return nil, &capture.ConfigurationError{What: fmt.Sprintf("channel index %d out of range [0, %d)", ch.Index, capture.MaxChannels)}
		}
		coupling, err := capture.ParseCoupling(ch.Coupling)
		if err != nil {
			return nil, err
		}
		result = append(result, capture.ChannelConfig{
			Index:        capture.ChannelID(ch.Index),
			Enabled:      ch.Enabled,
			Coupling:     coupling,
			Range:        ch.Range,
			AnalogOffset: ch.AnalogOffset,
		})
	}
	return result, nil
}

func (r *Runner) newID() string {
	return fmt.Sprintf("%s-%03d", time.Now().UTC().Format("20060102-150405"), r.seq.Add(1)%1000)
}

func (r *Runner) prepare(opts Options) (*session, error) {
	settings, err := Settings(r.Config.Capture)
	if err != nil {
		return nil, err
	}
	if opts.TotalSamples > 0 {
		settings.TotalSamples = opts.TotalSamples
	}
	if opts.SampleIntervalNs > 0 {
		settings.SampleInterval = time.Duration(opts.SampleIntervalNs)
	}
	channels, err := Channels(r.Config.Capture.Channels)
	if err != nil {
		return nil, err
	}
	dev, err := r.NewDevice(r.Config.Device)
	if err != nil {
		return nil, err
	}
	c, err := capture.New[int16](dev, settings, channels, device.NewLimits(r.Config.Device))
	if err != nil {
		return nil, err
	}

	s := &session{
		id:      r.newID(),
		dev:     dev,
		capture: c,
		memory:  sink.NewMemory(),
		done:    make(chan struct{}),
	}
	s.record = &store.Record{
		ID:               s.id,
		StartedAt:        time.Now(),
		Device:           dev.Name(),
		State:            capture.StateRunning.String(),
		TotalSamples:     settings.TotalSamples,
		SampleIntervalNs: uint64(settings.SampleInterval.Nanoseconds()),
	}
	for _, ch := range c.Enabled().Channels() {
		s.record.Channels = append(s.record.Channels, int(ch))
	}
	if r.Config.Sink != nil && r.Config.Sink.EdfDir != "" {
		s.edf = edfsink.New(r.Config.Sink.EdfDir, s.id, r.Config.Sink.EdfRecordSize)
	}
	return s, nil
}

func (r *Runner) sinks(s *session) capture.ResultSink {
	sinks := sink.Multi{s.memory}
	if s.edf != nil {
		sinks = append(sinks, s.edf)
	}
	if r.Store != nil && r.Config.Sink != nil && r.Config.Sink.Store {
		sinks = append(sinks, r.Store.Sink(s.id))
	}
	return sinks
}

func (r *Runner) putRecord(rec *store.Record) {
	if r.Store == nil {
		return
	}
	if err := r.Store.PutRecord(rec); err != nil {
		log.Error("Error while storing capture record %s: %s", rec.ID, err)
	}
}

// execute runs the prepared session to the end and records its outcome
func (r *Runner) execute(ctx context.Context, s *session) (*Report, error) {
	r.putRecord(s.record)

	listenCtx, stopListen := context.WithCancel(ctx)
	defer stopListen()
	if l, ok := s.dev.(device.Listener); ok {
		go func() {
			if err := l.Listen(listenCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Device listener failed: %s", err)
				s.capture.Cancel()
			}
		}()
	}

	report := &Report{Record: s.record}
	if err := s.capture.Start(ctx); err != nil {
		s.record.FinishedAt = time.Now()
		s.record.State = capture.StateCancelled.String()
		s.record.Error = err.Error()
		r.putRecord(s.record)
		return report, err
	}
	log.Info("Capture session %s started on %s device", s.id, s.dev.Name())

	waitCtx := ctx
	if timeout := r.Config.Capture.TimeoutMs; timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Millisecond)
		defer cancel()
	}

	result, err := s.capture.Deliver(waitCtx, r.sinks(s))
	s.record.Finish(result)
	if err != nil && s.record.Error == "" {
		s.record.Error = err.Error()
	}
	if s.edf != nil {
		s.record.Files = s.edf.Files()
	}
	s.record.SampleIntervalNs = uint64(result.Interval.Nanoseconds())
	r.putRecord(s.record)

	report.Result = result
	report.Waveforms = s.memory.Waveforms()
	if overflow := result.Overflow(); overflow != nil {
		log.Warning("Capture session %s: %s", s.id, overflow)
	}
	log.Info("Capture session %s finished: state: %s captured: %d of %d",
		s.id, s.record.State, s.record.Captured, s.record.TotalSamples)
	return report, err
}

// Run executes one session in the calling goroutine
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	s, err := r.begin(opts)
	if err != nil {
		return nil, err
	}
	report, err := r.execute(ctx, s)
	r.end(s, report, err)
	return report, err
}

func (r *Runner) begin(opts Options) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, ErrBusy
	}
	s, err := r.prepare(opts)
	if err != nil {
		return nil, err
	}
	r.active = s
	r.recent = s
	return s, nil
}

func (r *Runner) end(s *session, report *Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.report = report
	s.err = err
	r.last = s.record
	r.active = nil
	close(s.done)
}

// Start launches a session in the background and returns its id
func (r *Runner) Start(opts Options) (string, error) {
	s, err := r.begin(opts)
	if err != nil {
		return "", err
	}
	go func() {
		report, err := r.execute(r.Context, s)
		if err != nil {
			log.Error("Capture session %s failed: %s", s.id, err)
		}
		r.end(s, report, err)
	}()
	return s.id, nil
}

// Stop cancels the running session
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ErrNoSession
	}
	log.Info("Stopping capture session %s", r.active.id)
	r.active.capture.Cancel()
	return nil
}

// Wait blocks until the most recently started session ends and returns
// its report. It returns ErrNoSession if no session was started.
func (r *Runner) Wait(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	s := r.recent
	r.mu.Unlock()
	if s == nil {
		return nil, ErrNoSession
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return s.report, s.err
	}
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	s := r.active
	st := Status{Last: r.last}
	r.mu.Unlock()

	if s == nil {
		return st
	}
	snapshot := s.capture.Snapshot()
	st.ID = s.id
	st.Active = true
	st.State = snapshot.State.String()
	st.NextWrite = snapshot.NextWrite
	st.TotalSamples = snapshot.TotalSamples
	st.Triggered = snapshot.Triggered
	return st
}
