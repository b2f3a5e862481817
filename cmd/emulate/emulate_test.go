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

package emulate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-capture/pkg/config"
)

func TestEmulateRejectsBadPeriod(t *testing.T) {
	for _, period := range []string{"0", "-5"} {
		cmd := NewCommand(config.NewDefaultConfig())
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--period-ms", period, "--frames", "1"})
		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--period-ms must be positive")
	}
}
