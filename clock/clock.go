// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clock

import (
	"time"

	"github.com/jacobsa/timeutil"
)

// Clock knows the current time and can notify the caller after a delay.
// Injecting one lets tests fix timestamps instead of depending on the wall
// clock. It embeds timeutil.Clock for Now() and adds After(), which
// timeutil.Clock does not have, for components that need to wait on a
// timer (SimulatedClock's deterministic wake-ups).
type Clock interface {
	timeutil.Clock
	After(d time.Duration) <-chan time.Time
}

var (
	_ Clock = RealClock{}
	_ Clock = &FakeClock{}
	_ Clock = &SimulatedClock{}
)
