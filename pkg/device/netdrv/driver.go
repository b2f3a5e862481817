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
	"context"
	"fmt"
	"math/bits"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"

	"jinr.ru/greenlab/go-capture/pkg/capture"
	"jinr.ru/greenlab/go-capture/pkg/layers"
	"jinr.ru/greenlab/go-capture/pkg/log"
	"jinr.ru/greenlab/go-capture/pkg/srv"
)

const DefaultQueueSize = 64

// Driver receives sample batch frames over UDP and exposes them through the
// polling interface. Frames are written into the registered working buffers
// as they arrive and queued until the next PollLatest.
type Driver struct {
	Address   string
	Port      int
	QueueSize int

	mu             sync.Mutex
	working        [capture.MaxChannels][]int16
	registered     capture.ChannelSet
	size           int
	cursor         int
	pending        []capture.Notification
	pendingSamples int
	streaming      bool
	seq            uint32
	haveSeq        bool
	fault          error
	peer           *net.UDPAddr
	frames         uint64
	dropped        uint64
	server         *srv.Server
}

func New(address string, port int) *Driver {
	return &Driver{Address: address, Port: port, QueueSize: DefaultQueueSize}
}

func (d *Driver) Name() string {
	return "udp"
}

// Listen receives frames until ctx is done or the socket fails
func (d *Driver) Listen(ctx context.Context) error {
	s, err := srv.NewServer(ctx, d.Address, d.Port)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.server = s
	d.mu.Unlock()
	return s.Run(layers.BatchLayerType, d.handlePacket)
}

// LocalAddr returns the bound address or nil while Listen has not bound yet
func (d *Driver) LocalAddr() *net.UDPAddr {
	d.mu.Lock()
	s := d.server
	d.mu.Unlock()
	if s == nil {
		return nil
	}
	select {
	case <-s.Ready():
		return s.LocalAddr()
	default:
		return nil
	}
}

func (d *Driver) handlePacket(packet gopacket.Packet) {
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		log.Warning("Drop malformed frame: %s", errLayer.Error())
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		return
	}
	layer := packet.Layer(layers.BatchLayerType)
	if layer == nil {
		return
	}
	peer, err := srv.GetAddrPort(packet)
	if err != nil {
		log.Warning("Drop frame: %s", err)
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		return
	}
	if err := d.handleBatch(peer, layer.(*layers.BatchLayer)); err != nil {
		log.Error("Frame rejected: %s", err)
	}
}

// Feed decodes a single frame and queues its notification
func (d *Driver) Feed(data []byte) error {
	batch, err := layers.DecodeBatch(data)
	if err != nil {
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		return err
	}
	return d.handleBatch(nil, batch)
}

// handleBatch queues the frame. A non nil peer pins the session to the first
// sender, frames of other senders are dropped.
func (d *Driver) handleBatch(peer *net.UDPAddr, b *layers.BatchLayer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.streaming {
		d.dropped++
		log.Debug("Drop frame %d, device is not streaming", b.Seq)
		return nil
	}
	if peer != nil {
		if d.peer == nil {
			d.peer = &net.UDPAddr{IP: append(net.IP{}, peer.IP...), Port: peer.Port, Zone: peer.Zone}
			log.Info("Network device: receiving frames from %s", d.peer)
		} else if !d.peer.IP.Equal(peer.IP) || d.peer.Port != peer.Port {
			d.dropped++
			return ErrForeignPeer{Peer: peer.String(), Want: d.peer.String()}
		}
	}
	if d.fault != nil {
		d.dropped++
		return d.fault
	}
	if d.haveSeq && b.Seq != d.seq+1 {
		d.fault = ErrSequenceGap{Want: d.seq + 1, Got: b.Seq}
		return d.fault
	}
	d.seq = b.Seq
	d.haveSeq = true

	count := int(b.Count)
	if d.pendingSamples+count > d.size {
		d.fault = ErrOverrun{Pending: d.pendingSamples, Count: count, Size: d.size}
		return d.fault
	}
	if len(d.pending) >= d.QueueSize {
		d.fault = ErrQueueFull{Size: len(d.pending)}
		return d.fault
	}
	for v := uint64(d.registered); v != 0; v &= v - 1 {
		ch := uint8(bits.TrailingZeros64(v))
		if b.Channels&(1<<ch) == 0 {
			d.fault = ErrMissingChannel{Channel: capture.ChannelID(ch)}
			return d.fault
		}
	}

	for v := uint64(d.registered); v != 0; v &= v - 1 {
		ch := uint8(bits.TrailingZeros64(v))
		buf := d.working[ch]
		for i, s := range b.Data[ch] {
			buf[(d.cursor+i)%d.size] = s
		}
	}
	d.pending = append(d.pending, capture.Notification{
		StartIndex: d.cursor,
		Count:      count,
		Overflow:   capture.ChannelSet(b.Overflow) & d.registered,
		Triggered:  b.Triggered,
		TriggerAt:  int(b.TriggerAt),
		AutoStop:   b.AutoStop,
	})
	d.cursor = (d.cursor + count) % d.size
	d.pendingSamples += count
	d.frames++
	return nil
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
	return nil
}

func (d *Driver) StartStreaming(interval time.Duration, totalPostTrigger int, downsampleRatio uint32, mode capture.RatioMode) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.registered == 0 || d.size == 0 {
		return 0, ErrNoBuffers
	}
	if d.QueueSize <= 0 {
		d.QueueSize = DefaultQueueSize
	}
	d.cursor = 0
	d.pending = d.pending[:0]
	d.pendingSamples = 0
	d.haveSeq = false
	d.fault = nil
	d.peer = nil
	d.streaming = true
	log.Info("Network device: streaming started: interval: %s post trigger: %d ratio: %d mode: %s",
		interval, totalPostTrigger, downsampleRatio, mode)
	return interval, nil
}

// PollLatest hands every queued notification to fn. A receive fault is
// returned after the notifications queued before it.
func (d *Driver) PollLatest(fn capture.NotifyFunc) error {
	if !d.mu.TryLock() {
		return capture.ErrDriverBusy
	}
	defer d.mu.Unlock()
	if !d.streaming {
		return ErrNotStreaming
	}
	for _, n := range d.pending {
		fn(n)
	}
	d.pending = d.pending[:0]
	d.pendingSamples = 0
	return d.fault
}

// Stop is safe to call repeatedly
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streaming {
		log.Info("Network device: streaming stopped: frames: %d dropped: %d", d.frames, d.dropped)
	}
	d.streaming = false
	d.pending = d.pending[:0]
	d.pendingSamples = 0
	return nil
}

// Counters returns the number of accepted and dropped frames
func (d *Driver) Counters() (uint64, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames, d.dropped
}
