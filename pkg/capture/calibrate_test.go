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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrate(t *testing.T) {
	v := Calibrate([]int16{0, 32767, -32767, 16384}, 5.0, 32767)
	require.Len(t, v, 4)
	assert.Equal(t, 0.0, v[0])
	assert.InDelta(t, 5.0, v[1], 1e-12)
	assert.InDelta(t, -5.0, v[2], 1e-12)
	assert.InDelta(t, 2.5, v[3], 1e-3)
}

func TestCalibrateRoundTrip(t *testing.T) {
	const fullScale = 32767
	for _, rng := range []float64{0.05, 1, 5, 20} {
		raw := make([]int32, 0, 2*fullScale+1)
		for code := -fullScale; code <= fullScale; code++ {
			raw = append(raw, int32(code))
		}
		volts := Calibrate(raw, rng, fullScale)
		for i, v := range volts {
			back := Quantize(v, rng, fullScale)
			diff := back - raw[i]
			if diff < -1 || diff > 1 {
				t.Fatalf("range %g: code %d came back as %d", rng, raw[i], back)
			}
		}
	}
}

func TestCalibrateInt8(t *testing.T) {
	v := Calibrate([]int8{127, -127}, 2, 127)
	assert.InDelta(t, 2.0, v[0], 1e-12)
	assert.InDelta(t, -2.0, v[1], 1e-12)
}

func TestQuantizeClamps(t *testing.T) {
	assert.Equal(t, int32(32767), Quantize(7.5, 5, 32767))
	assert.Equal(t, int32(-32767), Quantize(-7.5, 5, 32767))
}
