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
	"fmt"
)

var (
	// ErrDriverBusy is returned (possibly wrapped) by a driver when it can not
	// serve a request right now. The fetch loop retries it after a backoff.
	ErrDriverBusy = errors.New("acquisition driver busy")
	// ErrSessionActive returned when a capture is started or reset while its fetch loop is running
	ErrSessionActive = errors.New("capture session is active")
	// ErrSessionCancelled returned when waveforms are requested for a cancelled session
	ErrSessionCancelled = errors.New("capture session cancelled")
	// ErrNotStarted returned when waiting for a capture that was never started
	ErrNotStarted = errors.New("capture session not started")
	// ErrNeedsReset returned when a finished capture is started again without Reset
	ErrNeedsReset = errors.New("capture session must be reset before restart")
)

// DriverFault is a fatal driver error. It aborts the session.
type DriverFault struct {
	Op  string
	Err error
}

func (e *DriverFault) Error() string {
	return fmt.Sprintf("Driver fault during %s: %s", e.Op, e.Err)
}

func (e *DriverFault) Unwrap() error {
	return e.Err
}

// BufferOverflow describes samples dropped at the capture boundary.
// It is never fatal.
type BufferOverflow struct {
	Count   uint64
	Dropped int
}

func (e *BufferOverflow) Error() string {
	return fmt.Sprintf("Capture buffer overflow: %d truncations, %d samples dropped", e.Count, e.Dropped)
}

// ConfigurationError returned synchronously at session setup
type ConfigurationError struct {
	What string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("Configuration error: %s", e.What)
}

func configErrorf(format string, v ...interface{}) error {
	return &ConfigurationError{What: fmt.Sprintf(format, v...)}
}

// SinkError wraps an error returned by a ResultSink
type SinkError struct {
	Channel ChannelID
	Err     error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("Result sink failed for channel %d: %s", e.Channel, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
