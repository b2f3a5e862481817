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

package srv

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"

	"jinr.ru/greenlab/go-capture/pkg/log"
)

// MaxDatagramSize is the largest UDP payload the server reads
const MaxDatagramSize = 65536

type InPacket struct {
	Data []byte
	gopacket.CaptureInfo
}

// GetAddrPort returns the UDPAddr of the peer that sent the packet
func GetAddrPort(packet gopacket.Packet) (*net.UDPAddr, error) {
	meta := packet.Metadata()
	if len(meta.CaptureInfo.AncillaryData) >= 1 {
		ancillary := meta.CaptureInfo.AncillaryData[0]
		udpAddr, ok := ancillary.(*net.UDPAddr)
		if !ok {
			return nil, ErrGetAddr{}
		}
		return udpAddr, nil
	}
	return nil, ErrGetAddr{}
}

// Server reads UDP datagrams and decodes them through a gopacket PacketSource
type Server struct {
	context.Context
	*net.UDPAddr
	ChIn chan InPacket

	ready chan struct{}
	local *net.UDPAddr
}

func NewServer(ctx context.Context, address string, port int) (*Server, error) {
	log.Debug("Initializing UDP server with address: %s port: %d", address, port)

	uaddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, err
	}
	return &Server{
		Context: ctx,
		UDPAddr: uaddr,
		ChIn:    make(chan InPacket),
		ready:   make(chan struct{}),
	}, nil
}

// ReadPacketData reads ChIn and returns packet data and metadata.
// This method is from PacketDataSource interface.
func (s *Server) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	select {
	case <-s.Context.Done():
		return nil, gopacket.CaptureInfo{}, io.EOF
	case p := <-s.ChIn:
		return p.Data, p.CaptureInfo, nil
	}
}

// Ready is closed once the socket is bound
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// LocalAddr is the bound address, valid after Ready is closed
func (s *Server) LocalAddr() *net.UDPAddr {
	return s.local
}

// Run binds the socket and passes every decoded packet to handle until the
// context is done or the socket fails. Packets are decoded starting with first
// and carry the sender address, see GetAddrPort.
func (s *Server) Run(first gopacket.Decoder, handle func(gopacket.Packet)) error {
	conn, err := net.ListenUDP("udp", s.UDPAddr)
	if err != nil {
		return ErrListen{Addr: s.UDPAddr.String(), Err: err}
	}
	defer conn.Close()
	s.local = conn.LocalAddr().(*net.UDPAddr)
	close(s.ready)
	log.Info("Listening on udp %s", s.local)

	errChan := make(chan error, 1)
	report := func(err error) {
		select {
		case errChan <- err:
		default:
		}
	}

	go func() {
		source := gopacket.NewPacketSource(s, first)
		for packet := range source.Packets() {
			handle(packet)
		}
	}()

	go func() {
		buffer := make([]byte, MaxDatagramSize)
		for {
			length, peer, readErr := conn.ReadFromUDP(buffer)
			if readErr != nil {
				report(readErr)
				return
			}
			// the packet source keeps the slice, so every datagram gets its own copy
			data := make([]byte, length)
			copy(data, buffer[:length])
			ci := gopacket.CaptureInfo{
				Length:        length,
				CaptureLength: length,
				Timestamp:     time.Now(),
				AncillaryData: []interface{}{peer},
			}
			select {
			case s.ChIn <- InPacket{Data: data, CaptureInfo: ci}:
			case <-s.Context.Done():
				return
			}
		}
	}()

	select {
	case <-s.Context.Done():
		return s.Context.Err()
	case err = <-errChan:
		return err
	}
}
