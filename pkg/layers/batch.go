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

package layers

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// BatchLayerNum identifies the layer
	BatchLayerNum = 2001
	// BatchMagic is the first word of every sample batch frame
	BatchMagic uint16 = 0x5342
	// BatchVersion is the only frame version supported
	BatchVersion uint8 = 1
	// BatchHeaderSize is the fixed header length in bytes
	BatchHeaderSize = 32
)

const (
	BatchFlagTriggered uint8 = 1 << iota
	BatchFlagAutoStop
)

// ErrShortFrame returned when a frame is shorter than its header says
type ErrShortFrame struct {
	Want int
	Got  int
}

func (e ErrShortFrame) Error() string {
	return fmt.Sprintf("Sample batch frame too short: want %d bytes, got %d", e.Want, e.Got)
}

// ErrBadMagic returned when the frame does not start with BatchMagic or has an unknown version
type ErrBadMagic struct {
	Magic   uint16
	Version uint8
}

func (e ErrBadMagic) Error() string {
	return fmt.Sprintf("Not a sample batch frame: magic: 0x%04x version: %d", e.Magic, e.Version)
}

// ErrTriggerOutOfRange returned when a triggered frame places its trigger
// outside of its own samples
type ErrTriggerOutOfRange struct {
	TriggerAt uint32
	Count     uint32
}

func (e ErrTriggerOutOfRange) Error() string {
	return fmt.Sprintf("Trigger position %d is outside of the %d samples of the frame", e.TriggerAt, e.Count)
}

/*
Sample batch frame, all fields little endian

magic [0:2]
version [2]
flags [3] bit 0 triggered, bit 1 auto stop
sequence number [4:8]
trigger position relative to the first sample of the batch [8:12]
number of samples per channel [12:16]
enabled channels bitset [16:24]
over range channels bitset [24:32]
samples int16, Count samples per enabled channel in ascending channel order
*/
type BatchLayer struct {
	layers.BaseLayer
	Seq       uint32
	Triggered bool
	AutoStop  bool
	TriggerAt uint32
	Count     uint32
	Channels  uint64
	Overflow  uint64
	// Data is keyed by channel number, every slice holds Count samples
	Data map[uint8][]int16
}

var BatchLayerType = gopacket.RegisterLayerType(BatchLayerNum,
	gopacket.LayerTypeMetadata{Name: "BatchLayerType", Decoder: gopacket.DecodeFunc(DecodeBatchLayer)})

// LayerType returns the type of the sample batch layer in the layer catalog
func (b *BatchLayer) LayerType() gopacket.LayerType {
	return BatchLayerType
}

func (b *BatchLayer) CanDecode() gopacket.LayerClass {
	return BatchLayerType
}

func (b *BatchLayer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

// Len is the length of the serialized frame
func (b *BatchLayer) Len() int {
	return BatchHeaderSize + bits.OnesCount64(b.Channels)*int(b.Count)*2
}

func (b *BatchLayer) flags() uint8 {
	var flags uint8
	if b.Triggered {
		flags |= BatchFlagTriggered
	}
	if b.AutoStop {
		flags |= BatchFlagAutoStop
	}
	return flags
}

// SerializeTo serializes the batch into bytes and writes the bytes to the SerializeBuffer.
// Channels missing in Data or having fewer than Count samples are padded with zeros.
func (b *BatchLayer) SerializeTo(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := buf.AppendBytes(b.Len())
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(bytes[0:2], BatchMagic)
	bytes[2] = BatchVersion
	bytes[3] = b.flags()
	binary.LittleEndian.PutUint32(bytes[4:8], b.Seq)
	binary.LittleEndian.PutUint32(bytes[8:12], b.TriggerAt)
	binary.LittleEndian.PutUint32(bytes[12:16], b.Count)
	binary.LittleEndian.PutUint64(bytes[16:24], b.Channels)
	binary.LittleEndian.PutUint64(bytes[24:32], b.Overflow)

	offset := BatchHeaderSize
	for v := b.Channels; v != 0; v &= v - 1 {
		samples := b.Data[uint8(bits.TrailingZeros64(v))]
		for i := 0; i < int(b.Count); i++ {
			var s int16
			if i < len(samples) {
				s = samples[i]
			}
			binary.LittleEndian.PutUint16(bytes[offset:offset+2], uint16(s))
			offset += 2
		}
	}
	return nil
}

func (b *BatchLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < BatchHeaderSize {
		df.SetTruncated()
		return ErrShortFrame{Want: BatchHeaderSize, Got: len(data)}
	}
	magic := binary.LittleEndian.Uint16(data[0:2])
	if magic != BatchMagic || data[2] != BatchVersion {
		return ErrBadMagic{Magic: magic, Version: data[2]}
	}
	b.Triggered = data[3]&BatchFlagTriggered != 0
	b.AutoStop = data[3]&BatchFlagAutoStop != 0
	b.Seq = binary.LittleEndian.Uint32(data[4:8])
	b.TriggerAt = binary.LittleEndian.Uint32(data[8:12])
	b.Count = binary.LittleEndian.Uint32(data[12:16])
	b.Channels = binary.LittleEndian.Uint64(data[16:24])
	b.Overflow = binary.LittleEndian.Uint64(data[24:32])
	if b.Triggered && b.TriggerAt >= b.Count {
		return ErrTriggerOutOfRange{TriggerAt: b.TriggerAt, Count: b.Count}
	}

	size := b.Len()
	if len(data) < size {
		df.SetTruncated()
		return ErrShortFrame{Want: size, Got: len(data)}
	}

	b.Data = make(map[uint8][]int16, bits.OnesCount64(b.Channels))
	offset := BatchHeaderSize
	for v := b.Channels; v != 0; v &= v - 1 {
		samples := make([]int16, b.Count)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(data[offset : offset+2]))
			offset += 2
		}
		b.Data[uint8(bits.TrailingZeros64(v))] = samples
	}

	b.BaseLayer = layers.BaseLayer{
		Contents: data[:size],
		Payload:  data[size:],
	}
	return nil
}

func DecodeBatchLayer(data []byte, p gopacket.PacketBuilder) error {
	batch := &BatchLayer{}
	err := batch.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(batch)
	return nil
}

// DecodeBatch decodes a single frame without building a packet
func DecodeBatch(data []byte) (*BatchLayer, error) {
	batch := &BatchLayer{}
	if err := batch.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, err
	}
	return batch, nil
}

// SerializeBatch returns the wire form of the batch
func SerializeBatch(batch *BatchLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, batch); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
