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

// ChannelBuffer holds the rotating working buffer the driver fills and the
// linear capture buffer the ingest engine accumulates into.
type ChannelBuffer[S Sample] struct {
	Working []S
	Capture []S
}

func NewChannelBuffer[S Sample](workingSize, totalSamples int) *ChannelBuffer[S] {
	return &ChannelBuffer[S]{
		Working: make([]S, workingSize),
		Capture: make([]S, totalSamples),
	}
}

// copyOut copies n samples of the working buffer starting at start into
// the capture buffer at offset. The read wraps around the end of the
// working buffer, so at most two contiguous copies are made.
// The caller guarantees offset+n <= len(Capture) and n <= len(Working).
func (b *ChannelBuffer[S]) copyOut(start, n, offset int) int {
	size := len(b.Working)
	if n <= 0 || size == 0 {
		return 0
	}
	start %= size
	if start < 0 {
		start += size
	}
	dst := b.Capture[offset : offset+n]
	first := copy(dst, b.Working[start:])
	if first < n {
		first += copy(dst[first:], b.Working[:n-first])
	}
	return first
}

func (b *ChannelBuffer[S]) clear() {
	for i := range b.Capture {
		b.Capture[i] = 0
	}
}
