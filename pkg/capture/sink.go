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

// Waveform is the calibrated capture of one channel
type Waveform struct {
	Channel          ChannelID `json:"channel"`
	Samples          []float64 `json:"samples"`
	SampleIntervalNs uint64    `json:"sampleIntervalNs"`
	TriggerIndex     int       `json:"triggerIndex"`
	Range            float64   `json:"range"`
	Coupling         Coupling  `json:"coupling"`
}

// ResultSink receives every calibrated waveform of a completed session,
// one call per enabled channel.
type ResultSink interface {
	OnCaptureComplete(w Waveform) error
}

// SinkFunc adapts a function to ResultSink
type SinkFunc func(w Waveform) error

func (f SinkFunc) OnCaptureComplete(w Waveform) error {
	return f(w)
}
