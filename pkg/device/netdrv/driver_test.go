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
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-capture/pkg/capture"
	"jinr.ru/greenlab/go-capture/pkg/device/sim"
	"jinr.ru/greenlab/go-capture/pkg/layers"
)

func frame(t *testing.T, seq uint32, count int, base int16, triggered bool, triggerAt uint32) []byte {
	batch := &layers.BatchLayer{
		Seq:       seq,
		Triggered: triggered,
		TriggerAt: triggerAt,
		Count:     uint32(count),
		Channels:  0b101,
		Data:      map[uint8][]int16{0: make([]int16, count), 2: make([]int16, count)},
	}
	for i := 0; i < count; i++ {
		batch.Data[0][i] = base + int16(i)
		batch.Data[2][i] = -(base + int16(i))
	}
	data, err := layers.SerializeBatch(batch)
	require.NoError(t, err)
	return data
}

func startedDriver(t *testing.T, size int) (*Driver, [][]int16) {
	d := New("127.0.0.1", 0)
	bufs := [][]int16{make([]int16, size), make([]int16, size)}
	require.NoError(t, d.RegisterBuffer(0, bufs[0], capture.RatioModeNone))
	require.NoError(t, d.RegisterBuffer(2, bufs[1], capture.RatioModeNone))
	_, err := d.StartStreaming(time.Microsecond, 100, 1, capture.RatioModeNone)
	require.NoError(t, err)
	return d, bufs
}

func poll(t *testing.T, d *Driver) ([]capture.Notification, error) {
	var got []capture.Notification
	err := d.PollLatest(func(n capture.Notification) { got = append(got, n) })
	return got, err
}

func (d *Driver) pendingSampleCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pendingSamples
}

func TestFramesBeforeStartAreDropped(t *testing.T) {
	d := New("127.0.0.1", 0)
	require.NoError(t, d.RegisterBuffer(0, make([]int16, 16), capture.RatioModeNone))
	require.NoError(t, d.Feed(frame(t, 0, 4, 1, false, 0)))
	frames, dropped := d.Counters()
	assert.Equal(t, uint64(0), frames)
	assert.Equal(t, uint64(1), dropped)

	_, err := poll(t, d)
	assert.Equal(t, ErrNotStreaming, err)
}

func TestFeedAndPollWraps(t *testing.T) {
	d, bufs := startedDriver(t, 16)

	require.NoError(t, d.Feed(frame(t, 10, 12, 100, false, 0)))
	got, err := poll(t, d)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, capture.Notification{StartIndex: 0, Count: 12}, got[0])

	require.NoError(t, d.Feed(frame(t, 11, 8, 200, true, 3)))
	got, err = poll(t, d)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 12, got[0].StartIndex)
	assert.True(t, got[0].Triggered)
	assert.Equal(t, 3, got[0].TriggerAt)

	// the second frame wrapped around the end of the working buffer
	assert.Equal(t, []int16{200, 201, 202, 203}, bufs[0][12:16])
	assert.Equal(t, []int16{204, 205, 206, 207}, bufs[0][0:4])
	assert.Equal(t, int16(-207), bufs[1][3])

	got, err = poll(t, d)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSequenceGapIsFault(t *testing.T) {
	d, _ := startedDriver(t, 64)
	require.NoError(t, d.Feed(frame(t, 1, 4, 0, false, 0)))
	err := d.Feed(frame(t, 3, 4, 0, false, 0))
	assert.Equal(t, ErrSequenceGap{Want: 2, Got: 3}, err)

	got, err := poll(t, d)
	assert.Len(t, got, 1)
	assert.Equal(t, ErrSequenceGap{Want: 2, Got: 3}, err)
}

func TestOverrunAndQueueFull(t *testing.T) {
	d, _ := startedDriver(t, 16)
	require.NoError(t, d.Feed(frame(t, 0, 10, 0, false, 0)))
	err := d.Feed(frame(t, 1, 10, 0, false, 0))
	assert.Equal(t, ErrOverrun{Pending: 10, Count: 10, Size: 16}, err)

	d, _ = startedDriver(t, 64)
	d.QueueSize = 2
	require.NoError(t, d.Feed(frame(t, 0, 1, 0, false, 0)))
	require.NoError(t, d.Feed(frame(t, 1, 1, 0, false, 0)))
	assert.Equal(t, ErrQueueFull{Size: 2}, d.Feed(frame(t, 2, 1, 0, false, 0)))
}

func TestMissingChannelAndMalformedFrame(t *testing.T) {
	d, _ := startedDriver(t, 16)
	data, err := layers.SerializeBatch(&layers.BatchLayer{Count: 2, Channels: 0b1})
	require.NoError(t, err)
	assert.Equal(t, ErrMissingChannel{Channel: 2}, d.Feed(data))

	d, _ = startedDriver(t, 16)
	assert.IsType(t, layers.ErrShortFrame{}, d.Feed([]byte{1, 2, 3}))
	_, dropped := d.Counters()
	assert.Equal(t, uint64(1), dropped)
}

func TestStopIsIdempotent(t *testing.T) {
	d, _ := startedDriver(t, 16)
	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
	_, err := poll(t, d)
	assert.Equal(t, ErrNotStreaming, err)
}

func TestCaptureOverFeed(t *testing.T) {
	d := New("127.0.0.1", 0)
	channels := []capture.ChannelConfig{
		{Index: 0, Enabled: true, Range: 1},
		{Index: 2, Enabled: true, Range: 1},
	}
	c, err := capture.New[int16](d, capture.Settings{
		TotalSamples:      50,
		WorkingBufferSize: 32,
		SampleInterval:    time.Microsecond,
		Backoff:           time.Millisecond,
	}, channels, capture.DefaultLimits())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	frames := [][]byte{
		frame(t, 0, 20, 0, false, 0),
		frame(t, 1, 20, 1000, true, 5),
		frame(t, 2, 20, 2000, false, 0),
		frame(t, 3, 20, 3000, false, 0),
	}
	for _, f := range frames {
		require.NoError(t, d.Feed(f))
		require.Eventually(t, func() bool {
			return d.pendingSampleCount() == 0 || c.Snapshot().State != capture.StateRunning
		}, time.Second, time.Millisecond)
	}

	r, err := c.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, r.Completed())
	assert.Equal(t, 5, r.Session.TriggerOffset)
	assert.Equal(t, uint64(1), r.Session.OverflowCount)
	assert.Equal(t, 10, r.Session.Dropped)

	waveforms, err := c.Waveforms(r)
	require.NoError(t, err)
	require.Len(t, waveforms, 2)
	assert.InDelta(t, 1000.0/32767, waveforms[0].Samples[0], 1e-12)
	assert.InDelta(t, 3009.0/32767, waveforms[0].Samples[49], 1e-12)
	assert.InDelta(t, -3009.0/32767, waveforms[1].Samples[49], 1e-12)
}

func TestListenAndEmulate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, _ := startedDriver(t, 1024)
	listenErr := make(chan error, 1)
	go func() { listenErr <- d.Listen(ctx) }()
	require.Eventually(t, func() bool { return d.LocalAddr() != nil }, time.Second, time.Millisecond)

	s, err := Dial("127.0.0.1", d.LocalAddr().Port)
	require.NoError(t, err)
	defer s.Close()

	g := sim.NewGenerator(1000, 50)
	require.NoError(t, Emulate(ctx, s, g, 0b101, 16, time.Millisecond, 10))

	require.Eventually(t, func() bool {
		frames, _ := d.Counters()
		return frames == 10
	}, 2*time.Second, time.Millisecond)

	got, err := poll(t, d)
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Equal(t, 16*9, got[9].StartIndex)

	cancel()
	err = <-listenErr
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRegisterMismatchedBuffers(t *testing.T) {
	d := New("127.0.0.1", 0)
	require.NoError(t, d.RegisterBuffer(0, make([]int16, 16), capture.RatioModeNone))
	err := d.RegisterBuffer(3, make([]int16, 8), capture.RatioModeNone)
	assert.Equal(t, ErrBufferSize{Channel: 3, Size: 8, Want: 16}, err)

	_, err = New("127.0.0.1", 0).StartStreaming(time.Microsecond, 10, 1, capture.RatioModeNone)
	assert.Equal(t, ErrNoBuffers, err)
}

func TestEmulateRejectsBadPeriod(t *testing.T) {
	g := sim.NewGenerator(1000, 50)
	for _, period := range []time.Duration{0, -time.Millisecond} {
		err := Emulate(context.Background(), nil, g, capture.ChannelSet(1), 8, period, 1)
		assert.Equal(t, ErrBadPeriod{Period: period}, err)
	}
	assert.Equal(t, 0, g.Position())
}

func framePacket(t *testing.T, data []byte, peer *net.UDPAddr) gopacket.Packet {
	packet := gopacket.NewPacket(data, layers.BatchLayerType, gopacket.Default)
	if peer != nil {
		packet.Metadata().AncillaryData = []interface{}{peer}
	}
	return packet
}

func TestFramesArePinnedToFirstPeer(t *testing.T) {
	d, _ := startedDriver(t, 64)
	first := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
	other := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40001}

	d.handlePacket(framePacket(t, frame(t, 1, 4, 0, false, 0), first))
	d.handlePacket(framePacket(t, frame(t, 2, 4, 0, false, 0), other))
	d.handlePacket(framePacket(t, frame(t, 2, 4, 0, false, 0), nil))
	d.handlePacket(framePacket(t, frame(t, 2, 4, 0, false, 0), first))

	frames, dropped := d.Counters()
	assert.Equal(t, uint64(2), frames)
	assert.Equal(t, uint64(2), dropped)

	got, err := poll(t, d)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	err = d.handleBatch(other, &layers.BatchLayer{Seq: 3, Count: 1, Channels: 0b101})
	assert.Equal(t, ErrForeignPeer{Peer: other.String(), Want: first.String()}, err)

	// a new session accepts a new sender
	_, err = d.StartStreaming(time.Microsecond, 100, 1, capture.RatioModeNone)
	require.NoError(t, err)
	d.handlePacket(framePacket(t, frame(t, 9, 4, 0, false, 0), other))
	frames, _ = d.Counters()
	assert.Equal(t, uint64(3), frames)
}
