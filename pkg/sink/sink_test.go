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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-capture/pkg/capture"
)

func TestMemory(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.OnCaptureComplete(capture.Waveform{Channel: 1, Samples: []float64{0.5}}))
	require.NoError(t, m.OnCaptureComplete(capture.Waveform{Channel: 3}))

	got := m.Waveforms()
	require.Len(t, got, 2)
	assert.Equal(t, capture.ChannelID(1), got[0].Channel)
	assert.Equal(t, capture.ChannelID(3), got[1].Channel)

	m.Reset()
	assert.Empty(t, m.Waveforms())
}

func TestMultiStopsAtFirstError(t *testing.T) {
	first, last := NewMemory(), NewMemory()
	failed := errors.New("read only file system")
	m := Multi{
		first,
		capture.SinkFunc(func(w capture.Waveform) error {
			if w.Channel == 2 {
				return failed
			}
			return nil
		}),
		last,
	}

	require.NoError(t, m.OnCaptureComplete(capture.Waveform{Channel: 0}))
	assert.Equal(t, failed, m.OnCaptureComplete(capture.Waveform{Channel: 2}))
	assert.Len(t, first.Waveforms(), 2)
	assert.Len(t, last.Waveforms(), 1)
}
