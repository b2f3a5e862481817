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

package netdrv

import (
	"errors"
	"fmt"
	"time"

	"jinr.ru/greenlab/go-capture/pkg/capture"
)

var (
	ErrNotStreaming = errors.New("network device is not streaming")
	ErrNoBuffers    = errors.New("no buffers registered")
)

// ErrSequenceGap returned when a frame is lost or reordered
type ErrSequenceGap struct {
	Want uint32
	Got  uint32
}

func (e ErrSequenceGap) Error() string {
	return fmt.Sprintf("Frame sequence gap: want %d, got %d", e.Want, e.Got)
}

// ErrOverrun returned when a frame would overwrite samples not yet polled
type ErrOverrun struct {
	Pending int
	Count   int
	Size    int
}

func (e ErrOverrun) Error() string {
	return fmt.Sprintf("Working buffer overrun: %d pending + %d new samples exceed %d", e.Pending, e.Count, e.Size)
}

// ErrQueueFull returned when the consumer does not poll fast enough
type ErrQueueFull struct {
	Size int
}

func (e ErrQueueFull) Error() string {
	return fmt.Sprintf("Notification queue is full: %d notifications pending", e.Size)
}

// ErrMissingChannel returned when a frame lacks samples of a registered channel
type ErrMissingChannel struct {
	Channel capture.ChannelID
}

func (e ErrMissingChannel) Error() string {
	return fmt.Sprintf("Frame has no samples for channel %d", e.Channel)
}

// ErrBufferSize returned when working buffers of the channels differ in size
type ErrBufferSize struct {
	Channel capture.ChannelID
	Size    int
	Want    int
}

func (e ErrBufferSize) Error() string {
	return fmt.Sprintf("Buffer of channel %d has %d samples, other channels have %d", e.Channel, e.Size, e.Want)
}

// ErrBadPeriod returned when frames are to be sent with a non positive period
type ErrBadPeriod struct {
	Period time.Duration
}

func (e ErrBadPeriod) Error() string {
	return fmt.Sprintf("Frame period must be positive, got %s", e.Period)
}

// ErrForeignPeer returned when a frame comes from another sender than the
// one the session is pinned to
type ErrForeignPeer struct {
	Peer string
	Want string
}

func (e ErrForeignPeer) Error() string {
	return fmt.Sprintf("Frame from %s rejected, session is receiving from %s", e.Peer, e.Want)
}
