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
	"context"
	"sync"
)

// Gate separates the fetch loop from the consumer of the capture buffers.
// It is opened exactly once. The result is stored before the done channel
// is closed, so a reader that returns from Wait sees every write the
// producer made before Open.
type Gate struct {
	once   sync.Once
	done   chan struct{}
	result Result
}

func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Open publishes the result. Only the first call has an effect.
// It reports whether this call opened the gate.
func (g *Gate) Open(r Result) bool {
	opened := false
	g.once.Do(func() {
		g.result = r
		close(g.done)
		opened = true
	})
	return opened
}

// Done is closed when the gate opens
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

func (g *Gate) IsOpen() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate opens or ctx is done
func (g *Gate) Wait(ctx context.Context) (Result, error) {
	select {
	case <-g.done:
		return g.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
