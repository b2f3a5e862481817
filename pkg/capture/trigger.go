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

// TriggerTracker remembers whether and where the session triggered.
// A session never returns to the untriggered state until it is re-armed.
type TriggerTracker struct {
	triggered bool
	offset    int
}

// Arm puts the tracker into the untriggered state
func (t *TriggerTracker) Arm() {
	t.triggered = false
	t.offset = 0
}

// Record returns the absolute trigger offset the first time a notification
// reports a trigger. Every later call returns false.
func (t *TriggerTracker) Record(triggered bool, triggerAt, batchStart int) (int, bool) {
	if t.triggered || !triggered {
		return 0, false
	}
	t.triggered = true
	t.offset = batchStart + triggerAt
	return t.offset, true
}

func (t *TriggerTracker) Triggered() bool {
	return t.triggered
}

// Offset is meaningful only when Triggered returns true
func (t *TriggerTracker) Offset() int {
	return t.offset
}
