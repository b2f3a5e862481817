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

import "math"

// Calibrate converts raw codes to volts: code / fullScale * rng.
// fullScale must not be zero, see ValidateFullScale.
func Calibrate[S Sample](raw []S, rng float64, fullScale int32) []float64 {
	result := make([]float64, len(raw))
	scale := rng / float64(fullScale)
	for i, code := range raw {
		result[i] = float64(code) * scale
	}
	return result
}

// Quantize is the inverse of Calibrate for a single value. The result is
// rounded to the nearest code and clamped to [-fullScale, fullScale].
func Quantize(v, rng float64, fullScale int32) int32 {
	code := math.Round(v / rng * float64(fullScale))
	limit := math.Abs(float64(fullScale))
	if code > limit {
		code = limit
	}
	if code < -limit {
		code = -limit
	}
	return int32(code)
}
