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

package pictrl

import (
	"math"

	"mpptd/pkg/logger"
)

// Regulator is a PI controller in multiplicative form: the correction
// scales the previous duty cycle rather than adding to an absolute
// output. In a step-down converter the output voltage moves inversely
// with duty, hence the negated terms.
type Regulator struct {
	Kp, Ki, Kd float64 // Kd accepted for interface completeness; not applied
	intErr     float64

	DutyMin    int
	DutyMax    int
	AntiWindup bool

	log *logger.Logger
}

func NewRegulator(kp, ki, kd float64) *Regulator {
	return &Regulator{
		Kp:  kp,
		Ki:  ki,
		Kd:  kd,
		log: logger.New("PI Control"),
	}
}

// --- Fluent "With" setters ---

func (pi *Regulator) WithOutputLimits(min, max int) *Regulator {
	pi.DutyMin = min
	pi.DutyMax = max
	return pi
}

func (pi *Regulator) WithAntiWindup(enabled bool) *Regulator {
	pi.AntiWindup = enabled
	return pi
}

// Update computes the next duty cycle for the measured output voltage.
// It returns ok=false without touching any state when measured is zero
// (no meaningful relative error; the caller keeps the previous duty).
//
//	err       = measured - desired
//	p         = -kp * err/measured
//	integral += -ki * err/measured
//	newDuty   = clamp(duty + duty*(p + integral))
//
// When the output saturates and anti-windup is enabled, the integral
// step of this update is rolled back so the accumulator cannot wind
// up against the clamp.
func (pi *Regulator) Update(desiredMV, measuredMV int64, duty int) (int, bool) {
	if measuredMV == 0 {
		pi.log.Debug("measured voltage is zero, skipping update")
		return duty, false
	}

	relErr := float64(measuredMV-desiredMV) / float64(measuredMV)

	p := -pi.Kp * relErr
	intStep := -pi.Ki * relErr
	pi.intErr += intStep

	raw := float64(duty) + float64(duty)*(p+pi.intErr)
	newDuty := int(math.Round(raw))

	clamped := false
	if newDuty > pi.DutyMax {
		newDuty = pi.DutyMax
		clamped = true
	} else if newDuty < pi.DutyMin {
		newDuty = pi.DutyMin
		clamped = true
	}

	if clamped && pi.AntiWindup {
		pi.intErr -= intStep
	}

	pi.log.Debug("err=%.4f, intErr=%.4f, duty %d -> %d", relErr, pi.intErr, duty, newDuty)
	return newDuty, true
}

// Integral exposes the accumulator for telemetry and tests.
func (pi *Regulator) Integral() float64 {
	return pi.intErr
}

// Reset clears the integral accumulator.
func (pi *Regulator) Reset() {
	pi.intErr = 0
}
