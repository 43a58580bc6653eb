// Copyright (C) 2025 the mpptd authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package events

import (
	"time"

	"mpptd/pkg/eventbus"
)

var (
	TopicControl eventbus.Topic = "control"
)

// ControlUpdate is published once per closed averaging window. All
// electrical values are the window averages, in millivolts/milliamps.
type ControlUpdate struct {
	Time time.Time `json:"time"`

	LowVoltage  int64 `json:"low_side_voltage"`
	LowCurrent  int64 `json:"low_side_current"`
	HighVoltage int64 `json:"high_side_voltage"`
	HighCurrent int64 `json:"high_side_current"`

	Duty     int `json:"duty_cycle"`
	Decision int `json:"decision"` // signed duty delta chosen by the IC engine

	DV int64 `json:"dv"`
	DI int64 `json:"di"`

	Safety     string `json:"safety"` // "NORMAL" or "SHUTDOWN"
	SafetyTrip bool   `json:"safety_trip,omitempty"`

	// SkippedTicks counts sensor-fault ticks since the previous update.
	SkippedTicks int `json:"skipped_ticks,omitempty"`
}
