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

package mppt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	e, err := NewEngine(10, 20, 20)
	require.NoError(t, err)
	return e
}

func TestNewEngine_RejectsBadRanges(t *testing.T) {
	_, err := NewEngine(0, 20, 20)
	assert.Error(t, err)

	_, err = NewEngine(-10, 20, 20)
	assert.Error(t, err)

	_, err = NewEngine(10, -1, 20)
	assert.Error(t, err)

	_, err = NewEngine(10, 20, 0)
	assert.Error(t, err)

	e, err := NewEngine(10, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, e.Step())
}

func TestDecide_StationaryVoltage(t *testing.T) {
	e := newTestEngine(t)

	// dV = 5 (inside the 10 mV dead-band), dI = 25 (outside 20 mA):
	// more current at the same voltage means more power, keep going.
	assert.Equal(t, 20, e.Decide(8005, 2025, 8000, 2000))

	// current dropped at the same voltage, back off
	assert.Equal(t, -20, e.Decide(8005, 1975, 8000, 2000))

	// both deltas inside the dead-bands: hold
	assert.Equal(t, 0, e.Decide(8005, 2010, 8000, 2000))

	// exactly at the current dead-band edge: hold
	assert.Equal(t, 0, e.Decide(8000, 2020, 8000, 2000))
}

func TestDecide_ZeroDeltaIsStable(t *testing.T) {
	e := newTestEngine(t)

	// identical consecutive windows must never perturb, and must not
	// divide by the zero voltage delta
	assert.Equal(t, 0, e.Decide(8000, 2000, 8000, 2000))
	assert.Equal(t, 0, e.Decide(0, 0, 0, 0))
}

func TestDecide_ConductanceComparison(t *testing.T) {
	e := newTestEngine(t)

	// dV=50, dI=10 at (8000 mV, 2000 mA):
	// slope 0.2, conductance -0.25, tolerance halfwidth 20/10 = 2
	// 0.2 is inside [-2.25, 1.75] -> hold
	assert.Equal(t, 0, e.Decide(8000, 2000, 7950, 1990))

	// slope 100/50 = 2.0 > 1.75 -> left of the maximum, step up
	assert.Equal(t, 20, e.Decide(8000, 2000, 7950, 1900))

	// slope -120/50 = -2.4 < -2.25 -> right of the maximum, step down
	assert.Equal(t, -20, e.Decide(8000, 2000, 7950, 2120))
}

func TestDecide_NegativeVoltageDelta(t *testing.T) {
	e := newTestEngine(t)

	// voltage fell by 50 mV while current rose by 100 mA:
	// slope = 100/-50 = -2.0, conductance -2000/8000 = -0.25,
	// band [-2.25, 1.75] -> hold
	assert.Equal(t, 0, e.Decide(8000, 2100, 8050, 2000))

	// slope 120/-50 = -2.4 below the band -> step down
	assert.Equal(t, -20, e.Decide(8000, 2120, 8050, 2000))
}

func TestDecide_ZeroVoltageHolds(t *testing.T) {
	e := newTestEngine(t)

	// voltage collapsed to zero: no conductance reference, hold
	assert.Equal(t, 0, e.Decide(0, 500, 8000, 2000))
}
