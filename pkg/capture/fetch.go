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
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"jinr.ru/greenlab/go-capture/pkg/log"
)

const (
	DefaultBackoff = 5 * time.Millisecond
	MinBackoff     = 1 * time.Millisecond
	MaxBackoff     = 10 * time.Millisecond
)

type State int32

const (
	StateRunning State = iota
	StateDraining
	StateCompleted
	StateCancelled
)

var stateNames = map[State]string{
	StateRunning:   "running",
	StateDraining:  "draining",
	StateCompleted: "completed",
	StateCancelled: "cancelled",
}

func (s State) String() string {
	return stateNames[s]
}

// Stats counts what the fetch loop did during a session
type Stats struct {
	Polls         uint64
	EmptyPolls    uint64
	BusyRetries   uint64
	Notifications uint64
	Late          uint64 // notifications that arrived after completion
}

// Result is published through the gate when the fetch loop ends.
// Err is set only when the driver failed; a cancelled session has a nil Err.
type Result struct {
	State    State
	Err      error
	Session  Session
	Interval time.Duration
	Stats    Stats
}

func (r Result) Completed() bool {
	return r.State == StateCompleted && r.Err == nil
}

// Overflow returns the truncation summary or nil when nothing was dropped
func (r Result) Overflow() *BufferOverflow {
	if r.Session.OverflowCount == 0 {
		return nil
	}
	return &BufferOverflow{Count: r.Session.OverflowCount, Dropped: r.Session.Dropped}
}

// FetchLoop polls the driver and feeds the ingest engine until the session
// completes, is cancelled or the driver fails. It always ends by stopping
// the driver once and opening the gate.
type FetchLoop[S Sample] struct {
	driver  AcquisitionDriver[S]
	engine  *Engine[S]
	gate    *Gate
	token   *Token
	backoff time.Duration

	// OnNotify, when set, is called in the loop goroutine after every ingest
	OnNotify func(Outcome)

	interval time.Duration
	state    atomic.Int32
	stopOnce sync.Once
	stats    Stats
}

func NewFetchLoop[S Sample](driver AcquisitionDriver[S], engine *Engine[S], gate *Gate, token *Token, backoff time.Duration) *FetchLoop[S] {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &FetchLoop[S]{
		driver:  driver,
		engine:  engine,
		gate:    gate,
		token:   token,
		backoff: backoff,
	}
}

// State is safe to call from any goroutine
func (l *FetchLoop[S]) State() State {
	return State(l.state.Load())
}

func (l *FetchLoop[S]) cancelled(ctx context.Context) bool {
	if l.token != nil && l.token.Cancelled() {
		return true
	}
	return ctx.Err() != nil
}

func (l *FetchLoop[S]) sleep(ctx context.Context) {
	timer := time.NewTimer(l.backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// stop calls the driver Stop only on the first invocation
func (l *FetchLoop[S]) stop() error {
	var err error
	l.stopOnce.Do(func() {
		log.Debug("Stop sampling")
		err = l.driver.Stop()
	})
	return err
}

// Run executes the loop in the calling goroutine and returns the result it
// published through the gate.
func (l *FetchLoop[S]) Run(ctx context.Context) Result {
	l.state.Store(int32(StateRunning))

	var (
		fault     error
		complete  bool
		delivered int
	)

	handler := func(n Notification) {
		if complete {
			l.stats.Late++
			log.Debug("Drop notification after completion: count: %d", n.Count)
			return
		}
		l.stats.Notifications++
		delivered += n.Count
		out := l.engine.Ingest(n)
		if l.OnNotify != nil {
			l.OnNotify(out)
		}
		complete = out.Complete
	}

	for !complete {
		if l.cancelled(ctx) {
			log.Info("Capture cancelled at %d samples", l.engine.Progress())
			break
		}
		delivered = 0
		l.stats.Polls++
		err := l.driver.PollLatest(handler)
		if complete {
			if err != nil {
				log.Warning("Driver error after capture completed: %s", err)
			}
			break
		}
		if err != nil {
			if errors.Is(err, ErrDriverBusy) {
				l.stats.BusyRetries++
				log.Debug("Driver busy, retry in %s", l.backoff)
				l.sleep(ctx)
				continue
			}
			log.Error("Driver failed while polling: %s", err)
			fault = &DriverFault{Op: "poll latest", Err: err}
			break
		}
		if delivered == 0 {
			l.stats.EmptyPolls++
			l.sleep(ctx)
		}
	}

	l.state.Store(int32(StateDraining))
	if err := l.stop(); err != nil {
		if complete {
			log.Warning("Error while stopping driver after completion: %s", err)
		} else {
			log.Error("Error while stopping driver: %s", err)
			if fault == nil {
				fault = &DriverFault{Op: "stop", Err: err}
			}
		}
	}

	final := StateCancelled
	if complete && fault == nil {
		final = StateCompleted
	}
	result := Result{
		State:    final,
		Err:      fault,
		Session:  l.engine.Session(),
		Interval: l.interval,
		Stats:    l.stats,
	}
	l.state.Store(int32(final))
	log.Info("Capture %s: %d of %d samples, %d truncations",
		final, result.Session.NextWrite, result.Session.TotalSamples, result.Session.OverflowCount)
	l.gate.Open(result)
	return result
}
