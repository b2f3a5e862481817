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

package sink

import (
	"sync"

	"jinr.ru/greenlab/go-capture/pkg/capture"
)

// Memory keeps delivered waveforms in memory
type Memory struct {
	mu        sync.Mutex
	waveforms []capture.Waveform
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) OnCaptureComplete(w capture.Waveform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waveforms = append(m.waveforms, w)
	return nil
}

// Waveforms returns the waveforms delivered so far in delivery order
func (m *Memory) Waveforms() []capture.Waveform {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]capture.Waveform, len(m.waveforms))
	copy(result, m.waveforms)
	return result
}

func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waveforms = nil
}

// Multi passes every waveform to each sink in order and stops at the first error
type Multi []capture.ResultSink

func (m Multi) OnCaptureComplete(w capture.Waveform) error {
	for _, s := range m {
		if err := s.OnCaptureComplete(w); err != nil {
			return err
		}
	}
	return nil
}
