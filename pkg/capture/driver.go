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
	"strings"
	"time"
)

type RatioMode int

const (
	RatioModeNone RatioMode = iota
	RatioModeAggregate
	RatioModeDecimate
	RatioModeAverage
)

var ratioModeNames = map[RatioMode]string{
	RatioModeNone:      "none",
	RatioModeAggregate: "aggregate",
	RatioModeDecimate:  "decimate",
	RatioModeAverage:   "average",
}

func (m RatioMode) String() string {
	return ratioModeNames[m]
}

func ParseRatioMode(s string) (RatioMode, error) {
	if s == "" {
		return RatioModeNone, nil
	}
	for mode, name := range ratioModeNames {
		if strings.EqualFold(name, s) {
			return mode, nil
		}
	}
	return RatioModeNone, configErrorf("unknown downsampling ratio mode %q", s)
}

// Notification tells that Count new samples are available in every
// registered working buffer starting at StartIndex. The values apply to all
// channels at once.
type Notification struct {
	StartIndex int
	Count      int
	// Overflow has a bit set for every channel the device reports over range
	Overflow  ChannelSet
	Triggered bool
	// TriggerAt is relative to StartIndex and valid only when Triggered is set
	TriggerAt int
	AutoStop  bool
}

// NotifyFunc is invoked by a driver for every batch of new samples
type NotifyFunc func(n Notification)

// AcquisitionDriver is the streaming interface of a digitizer.
// PollLatest calls fn synchronously zero or more times. A driver may return
// ErrDriverBusy (or wrap it) to ask for a retry.
type AcquisitionDriver[S Sample] interface {
	RegisterBuffer(ch ChannelID, buf []S, mode RatioMode) error
	StartStreaming(interval time.Duration, totalPostTrigger int, downsampleRatio uint32, mode RatioMode) (time.Duration, error)
	PollLatest(fn NotifyFunc) error
	Stop() error
}

// DrainDriver is a driver that returns pending notifications one by one
// instead of invoking a callback.
type DrainDriver[S Sample] interface {
	RegisterBuffer(ch ChannelID, buf []S, mode RatioMode) error
	StartStreaming(interval time.Duration, totalPostTrigger int, downsampleRatio uint32, mode RatioMode) (time.Duration, error)
	Drain() (Notification, bool, error)
	Stop() error
}

type drainAdapter[S Sample] struct {
	DrainDriver[S]
}

// Drain adapts a DrainDriver to the callback style interface
func Drain[S Sample](d DrainDriver[S]) AcquisitionDriver[S] {
	return &drainAdapter[S]{DrainDriver: d}
}

func (a *drainAdapter[S]) PollLatest(fn NotifyFunc) error {
	for {
		n, ok, err := a.DrainDriver.Drain()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		fn(n)
	}
}
