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

// Package edfsink writes every calibrated waveform to its own EDF file
package edfsink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OpenPSG/edf"

	"jinr.ru/greenlab/go-capture/pkg/capture"
	"jinr.ru/greenlab/go-capture/pkg/log"
)

const (
	DigitalMax = 32767
	DigitalMin = -DigitalMax
	// MaxRecordSamples keeps a single signal record within the 61440 bytes EDF recommends
	MaxRecordSamples = 30720
)

type Sink struct {
	Dir           string
	Session       string
	RecordSamples int
	StartTime     time.Time

	mu    sync.Mutex
	files []string
}

func New(dir, session string, recordSamples int) *Sink {
	return &Sink{
		Dir:           dir,
		Session:       session,
		RecordSamples: recordSamples,
		StartTime:     time.Now(),
	}
}

// FileName is the file the waveform of the channel is written to
func (s *Sink) FileName(ch capture.ChannelID) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_ch%02d.edf", s.Session, ch))
}

func (s *Sink) recordSamples() int {
	n := s.RecordSamples
	if n <= 0 || n > MaxRecordSamples {
		n = MaxRecordSamples
	}
	return n
}

// Header describes a single signal file for the waveform. Physical limits
// are the input range, so every code of the device maps to a digital value.
func (s *Sink) Header(w capture.Waveform) edf.Header {
	n := s.recordSamples()
	return edf.Header{
		Version:            edf.Version0,
		PatientID:          "X",
		RecordingID:        fmt.Sprintf("%s samples:%d trigger:%d", s.Session, len(w.Samples), w.TriggerIndex),
		StartTime:          s.StartTime,
		DataRecordDuration: time.Duration(uint64(n) * w.SampleIntervalNs),
		SignalCount:        1,
		Signals: []edf.Signal{
			{
				Label:             fmt.Sprintf("CH%02d", w.Channel),
				TransducerType:    fmt.Sprintf("digitizer %s coupling", w.Coupling),
				PhysicalDimension: "V",
				PhysicalMin:       -w.Range,
				PhysicalMax:       w.Range,
				DigitalMin:        DigitalMin,
				DigitalMax:        DigitalMax,
				Prefiltering:      fmt.Sprintf("interval:%dns", w.SampleIntervalNs),
				SamplesPerRecord:  n,
			},
		},
	}
}

// OnCaptureComplete writes the waveform in records of RecordSamples samples.
// The last record is padded with zeros.
func (s *Sink) OnCaptureComplete(w capture.Waveform) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return err
	}
	name := s.FileName(w.Channel)
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	ew, err := edf.Create(f, s.Header(w))
	if err != nil {
		return err
	}
	n := s.recordSamples()
	record := make([]float64, n)
	for start := 0; start < len(w.Samples); start += n {
		copied := copy(record, w.Samples[start:])
		for i := copied; i < n; i++ {
			record[i] = 0
		}
		if err := ew.WriteRecord([][]float64{record}); err != nil {
			return err
		}
	}
	if err := ew.Close(); err != nil {
		return err
	}

	s.mu.Lock()
	s.files = append(s.files, name)
	s.mu.Unlock()
	log.Info("Waveform of channel %d written to %s", w.Channel, name)
	return f.Close()
}

// Files returns the files written so far
func (s *Sink) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.files...)
}
