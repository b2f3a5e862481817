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
	"time"

	"jinr.ru/greenlab/go-capture/pkg/capture"
	"jinr.ru/greenlab/go-capture/pkg/device/sim"
	"jinr.ru/greenlab/go-capture/pkg/layers"
	"jinr.ru/greenlab/go-capture/pkg/log"
)

// Sender numbers and sends sample batch frames to a listening Driver
type Sender struct {
	conn *net.UDPConn
	seq  uint32
}

func Dial(address string, port int) (*Sender, error) {
	uaddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, uaddr)
	if err != nil {
		return nil, err
	}
	return &Sender{conn: conn}, nil
}

// Send overwrites the sequence number of the batch and sends it
func (s *Sender) Send(batch *layers.BatchLayer) error {
	batch.Seq = s.seq
	data, err := layers.SerializeBatch(batch)
	if err != nil {
		return err
	}
	if _, err := s.conn.Write(data); err != nil {
		return err
	}
	s.seq++
	return nil
}

func (s *Sender) Close() error {
	return s.conn.Close()
}

// Emulate streams the generator output as frames of batchSize samples, one
// frame every period, until ctx is done, the generator auto stops or
// frames frames are sent. frames <= 0 means no limit.
func Emulate(ctx context.Context, s *Sender, g *sim.Generator, channels capture.ChannelSet, batchSize int, period time.Duration, frames int) error {
	if period <= 0 {
		return ErrBadPeriod{Period: period}
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for sent := 0; frames <= 0 || sent < frames; sent++ {
		block := g.Next(batchSize, channels)
		batch := &layers.BatchLayer{
			Triggered: block.Triggered,
			AutoStop:  block.AutoStop,
			TriggerAt: uint32(block.TriggerAt),
			Count:     uint32(block.Count),
			Channels:  uint64(channels),
			Overflow:  uint64(block.Overflow),
			Data:      make(map[uint8][]int16, channels.Len()),
		}
		for v := uint64(channels); v != 0; v &= v - 1 {
			ch := capture.ChannelID(bits.TrailingZeros64(v))
			samples := make([]int16, block.Count)
			for i := range samples {
				samples[i], _ = g.Value(ch, block.Start+i)
			}
			batch.Data[uint8(ch)] = samples
		}
		if err := s.Send(batch); err != nil {
			return err
		}
		if block.Triggered {
			log.Info("Emulated trigger at sample %d", block.Start+block.TriggerAt)
		}
		if block.AutoStop {
			log.Info("Emulation auto stopped after %d frames", sent+1)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
