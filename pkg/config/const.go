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

package config

const (
	ConfigDir             = ".go-capture"
	ConfigFile            = "config"
	DBFile                = "capture.db"
	EnvPrefix             = "GOCAPTURE"
	DefaultLogLevel       = "info"
	DefaultApiAddress     = "127.0.0.1"
	DefaultApiPort        = 8002
	DefaultTotalSamples   = 10000
	DefaultIntervalNs     = 1000
	DefaultWorkingSize    = 1024
	DefaultBackoffMs      = 5
	DefaultTimeoutMs      = 10000
	DefaultRange          = 5.0
	DefaultFullScaleCode  = 32767
	DefaultDeviceKind     = DeviceKindSim
	DefaultStreamAddress  = "0.0.0.0"
	DefaultStreamPort     = 33310
	DefaultSimAmplitude   = 20000
	DefaultSimPeriod      = 500
	DefaultSimBatchSize   = 256
	DefaultSimTriggerWait = 1000
	DefaultEdfRecordSize  = 1000

	DeviceKindSim = "sim"
	DeviceKindUDP = "udp"
)
