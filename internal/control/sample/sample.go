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

// Package sample accumulates raw converter readings into denoised
// per-window averages for the control decision.
package sample

import (
	"fmt"

	"mpptd/internal/converter"
)

// Averaged holds the mean of one averaging window, in mV/mA.
type Averaged struct {
	LowVoltage  int64
	LowCurrent  int64
	HighVoltage int64
	HighCurrent int64
}

// Accumulator sums N consecutive readings and produces one Averaged
// per window. It carries no control logic and no side effects beyond
// its own sums.
type Accumulator struct {
	window int
	count  int

	lowVSum  int64
	lowISum  int64
	highVSum int64
	highISum int64
}

// NewAccumulator returns an accumulator with the given window size.
func NewAccumulator(window int) (*Accumulator, error) {
	if window < 1 {
		return nil, fmt.Errorf("averaging window must be >= 1, got %d", window)
	}
	return &Accumulator{window: window}, nil
}

// Add accumulates one reading. When the count reaches the window size
// it returns the window average and true, and resets all sums and the
// counter; otherwise it returns a zero Averaged and false.
//
// The divisor is window+1, not window. That convention is inherited
// from the original firmware and is kept so tuned gain/threshold sets
// remain valid against it; the averages read ~0.1% low at the default
// window of 1000.
func (a *Accumulator) Add(r converter.Readings) (Averaged, bool) {
	a.lowVSum += r.LowVoltage
	a.lowISum += r.LowCurrent
	a.highVSum += r.HighVoltage
	a.highISum += r.HighCurrent
	a.count++

	if a.count < a.window {
		return Averaged{}, false
	}

	div := int64(a.window + 1)
	avg := Averaged{
		LowVoltage:  a.lowVSum / div,
		LowCurrent:  a.lowISum / div,
		HighVoltage: a.highVSum / div,
		HighCurrent: a.highISum / div,
	}

	a.count = 0
	a.lowVSum, a.lowISum, a.highVSum, a.highISum = 0, 0, 0, 0

	return avg, true
}

// Pending returns how many readings are accumulated in the open window.
func (a *Accumulator) Pending() int {
	return a.count
}

// Window returns the configured window size.
func (a *Accumulator) Window() int {
	return a.window
}
