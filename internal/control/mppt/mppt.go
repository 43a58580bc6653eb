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

// Package mppt implements the incremental-conductance maximum power
// point decision rule: at the maximum of the P-V curve, dI/dV equals
// -I/V. Comparing the two slopes tells which side of the maximum the
// operating point sits on, and dead-bands on both axes keep sensor
// noise from causing spurious perturbations.
package mppt

import "fmt"

// Engine decides duty-cycle perturbations from successive averaged
// (voltage, current) pairs. It is stateless; the caller supplies the
// previous window's averages.
type Engine struct {
	voltageErrorRange int64 // mV, dead-band for dV
	currentErrorRange int64 // mA, dead-band for dI
	step              int
}

// NewEngine validates the dead-bands. A zero voltage range would make
// the dV guard unable to shield the dI/dV division, so it is rejected
// outright.
func NewEngine(voltageErrorRangeMV, currentErrorRangeMA int64, step int) (*Engine, error) {
	if voltageErrorRangeMV <= 0 {
		return nil, fmt.Errorf("voltage error range must be positive, got %d", voltageErrorRangeMV)
	}
	if currentErrorRangeMA < 0 {
		return nil, fmt.Errorf("current error range must not be negative, got %d", currentErrorRangeMA)
	}
	if step <= 0 {
		return nil, fmt.Errorf("duty step must be positive, got %d", step)
	}
	return &Engine{
		voltageErrorRange: voltageErrorRangeMV,
		currentErrorRange: currentErrorRangeMA,
		step:              step,
	}, nil
}

// Decide returns the signed duty-cycle delta (-step, 0 or +step) for
// the move from (prevV, prevI) to (v, i). It never clamps; applying
// bounds is the orchestrator's job.
func (e *Engine) Decide(v, i, prevV, prevI int64) int {
	dV := v - prevV
	dI := i - prevI

	// Branch 1: voltage is stationary within the dead-band. dV may be
	// exactly zero here, which is why this guard must come first.
	if -e.voltageErrorRange < dV && dV < e.voltageErrorRange {
		switch {
		case dI > e.currentErrorRange:
			return e.step
		case dI < -e.currentErrorRange:
			return -e.step
		default:
			return 0
		}
	}

	// Branch 2: voltage moved materially. Compare the incremental
	// conductance dI/dV with the instantaneous conductance -I/V,
	// widened by a tolerance band.
	if v == 0 {
		// no conductance reference at zero volts; hold
		return 0
	}

	slope := float64(dI) / float64(dV)
	conductance := -float64(i) / float64(v)
	halfwidth := float64(e.currentErrorRange) / float64(e.voltageErrorRange)

	switch {
	case slope > conductance+halfwidth:
		return e.step
	case slope < conductance-halfwidth:
		return -e.step
	default:
		return 0
	}
}

// Step returns the configured perturbation size.
func (e *Engine) Step() int {
	return e.step
}
