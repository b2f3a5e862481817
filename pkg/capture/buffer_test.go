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

func TestCopyOutWraparound(t *testing.T) {
	b := NewChannelBuffer[int16](1000, 20)
	for i := range b.Working {
		b.Working[i] = int16(i)
	}

	n := b.copyOut(995, 10, 3)
	require.Equal(t, 10, n)
	assert.Equal(t, []int16{995, 996, 997, 998, 999, 0, 1, 2, 3, 4}, b.Capture[3:13])
	assert.Equal(t, []int16{0, 0, 0}, b.Capture[:3])
	assert.Equal(t, make([]int16, 7), b.Capture[13:])
}

func TestCopyOutNoWrap(t *testing.T) {
	b := NewChannelBuffer[int32](8, 8)
	for i := range b.Working {
		b.Working[i] = int32(i * 10)
	}
	assert.Equal(t, 3, b.copyOut(2, 3, 0))
	assert.Equal(t, []int32{20, 30, 40}, b.Capture[:3])
}

func TestCopyOutStartBeyondCapacity(t *testing.T) {
	b := NewChannelBuffer[int8](4, 4)
	copy(b.Working, []int8{1, 2, 3, 4})
	assert.Equal(t, 2, b.copyOut(7, 2, 0))
	assert.Equal(t, []int8{4, 1}, b.Capture[:2])
}

func TestCopyOutZero(t *testing.T) {
	b := NewChannelBuffer[int16](4, 4)
	assert.Equal(t, 0, b.copyOut(0, 0, 0))
}
