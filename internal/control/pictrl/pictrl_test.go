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
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestRegulator() *Regulator {
	return NewRegulator(0.1, 0.01, 0).WithOutputLimits(10, 1023)
}

func TestUpdate_AtSetpointHoldsDuty(t *testing.T) {
	pi := newTestRegulator()

	duty, ok := pi.Update(8000, 8000, 512)
	assert.True(t, ok)
	assert.Equal(t, 512, duty)
	assert.Zero(t, pi.Integral())

	// repeated updates at the setpoint must not drift
	for n := 0; n < 100; n++ {
		duty, ok = pi.Update(8000, 8000, duty)
		assert.True(t, ok)
	}
	assert.Equal(t, 512, duty)
	assert.Zero(t, pi.Integral())
}

func TestUpdate_OvervoltageLowersDuty(t *testing.T) {
	pi := newTestRegulator()

	// measured above desired: relErr = 0.2, correction = -(0.1+0.01)*0.2
	// 512 * (1 - 0.022) = 500.736 -> 501
	duty, ok := pi.Update(8000, 10000, 512)
	assert.True(t, ok)
	assert.Equal(t, 501, duty)
	assert.InDelta(t, -0.002, pi.Integral(), 1e-12)
}

func TestUpdate_UndervoltageRaisesDuty(t *testing.T) {
	pi := newTestRegulator()

	// measured at half the desired: relErr = -1, correction = +0.11
	// 512 * 1.11 = 568.32 -> 568
	duty, ok := pi.Update(8000, 4000, 512)
	assert.True(t, ok)
	assert.Equal(t, 568, duty)
	assert.InDelta(t, 0.01, pi.Integral(), 1e-12)
}

func TestUpdate_ZeroMeasurementSkips(t *testing.T) {
	pi := newTestRegulator()

	duty, ok := pi.Update(8000, 0, 512)
	assert.False(t, ok)
	assert.Equal(t, 512, duty)
	assert.Zero(t, pi.Integral())
}

func TestUpdate_ClampsToOutputLimits(t *testing.T) {
	pi := NewRegulator(0.1, 0.01, 0).WithOutputLimits(10, 520)

	duty, ok := pi.Update(8000, 4000, 512)
	assert.True(t, ok)
	assert.Equal(t, 520, duty)

	pi = NewRegulator(0.1, 0.01, 0).WithOutputLimits(505, 1023)
	duty, ok = pi.Update(8000, 10000, 512)
	assert.True(t, ok)
	assert.Equal(t, 505, duty)
}

func TestUpdate_AntiWindupFreezesIntegralAtClamp(t *testing.T) {
	pi := NewRegulator(0.1, 0.01, 0).
		WithOutputLimits(10, 520).
		WithAntiWindup(true)

	for n := 0; n < 50; n++ {
		duty, ok := pi.Update(8000, 4000, 512)
		assert.True(t, ok)
		assert.Equal(t, 520, duty)
	}
	// every step saturated, so every integral step was rolled back
	assert.Zero(t, pi.Integral())

	// without anti-windup the accumulator keeps growing
	pi = NewRegulator(0.1, 0.01, 0).WithOutputLimits(10, 520)
	for n := 0; n < 50; n++ {
		pi.Update(8000, 4000, 512)
	}
	assert.InDelta(t, 0.5, pi.Integral(), 1e-9)
}

func TestReset(t *testing.T) {
	pi := newTestRegulator()
	pi.Update(8000, 4000, 512)
	assert.NotZero(t, pi.Integral())

	pi.Reset()
	assert.Zero(t, pi.Integral())
}
