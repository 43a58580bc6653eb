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

// Package safety holds the overvoltage interlock: a two-state machine
// that suspends regulation and forces a protective duty cycle while
// the low side is above its configured maximum.
package safety

import (
	"mpptd/internal/config"
	"mpptd/pkg/logger"
)

type State int

const (
	Normal State = iota
	Shutdown
)

func (s State) String() string {
	if s == Shutdown {
		return "SHUTDOWN"
	}
	return "NORMAL"
}

// Interlock trips on averaged low-side overvoltage. Whether it may
// re-arm is a configuration choice: hardware variants latch until a
// power cycle, bench variants re-arm once the voltage re-enters the
// reset band.
type Interlock struct {
	maxLowVoltage int64
	autoReset     bool
	resetLow      int64
	resetHigh     int64
	safeTarget    int64
	dutyMin       int
	dutyMax       int

	state State
	log   *logger.Logger
}

func NewInterlock(conf config.SafetyConfig, dutyMin, dutyMax int) *Interlock {
	return &Interlock{
		maxLowVoltage: conf.MaxLowSideVoltageMV,
		autoReset:     conf.AutoReset,
		resetLow:      conf.ResetLowMV,
		resetHigh:     conf.ResetHighMV,
		safeTarget:    conf.SafeHighSideTargetMV,
		dutyMin:       dutyMin,
		dutyMax:       dutyMax,
		state:         Normal,
		log:           logger.New("Safety"),
	}
}

// Check evaluates the averaged low-side voltage against the interlock
// thresholds and returns the resulting state plus whether a transition
// happened on this call.
func (il *Interlock) Check(avgLowVoltageMV int64) (State, bool) {
	switch il.state {
	case Normal:
		if avgLowVoltageMV > il.maxLowVoltage {
			il.state = Shutdown
			il.log.Error("low side overvoltage: %d mV > %d mV", avgLowVoltageMV, il.maxLowVoltage)
			return il.state, true
		}
	case Shutdown:
		if il.autoReset && avgLowVoltageMV >= il.resetLow && avgLowVoltageMV <= il.resetHigh {
			il.state = Normal
			il.log.Info("voltage back in reset band (%d mV), resuming regulation", avgLowVoltageMV)
			return il.state, true
		}
	}
	return il.state, false
}

// State returns the current interlock state.
func (il *Interlock) State() State {
	return il.state
}

// ProtectiveDuty computes the duty cycle that steers the input side
// toward the safe target voltage while regulation is suspended.
func (il *Interlock) ProtectiveDuty(highVoltageMV int64) int {
	if highVoltageMV <= 0 {
		return il.dutyMin
	}
	duty := int(il.safeTarget * 1024 / highVoltageMV)
	if duty > il.dutyMax {
		duty = il.dutyMax
	}
	if duty < il.dutyMin {
		duty = il.dutyMin
	}
	return duty
}
