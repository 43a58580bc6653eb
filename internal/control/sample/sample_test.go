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

package sample

import (
	"testing"

	"mpptd/internal/converter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccumulator_RejectsInvalidWindow(t *testing.T) {
	_, err := NewAccumulator(0)
	assert.Error(t, err)

	_, err = NewAccumulator(-5)
	assert.Error(t, err)

	acc, err := NewAccumulator(1)
	require.NoError(t, err)
	assert.Equal(t, 1, acc.Window())
}

func TestAccumulator_WindowClosesExactlyOnce(t *testing.T) {
	acc, err := NewAccumulator(3)
	require.NoError(t, err)

	r := converter.Readings{LowVoltage: 100, LowCurrent: 200, HighVoltage: 300, HighCurrent: 400}

	_, closed := acc.Add(r)
	assert.False(t, closed)
	_, closed = acc.Add(r)
	assert.False(t, closed)
	assert.Equal(t, 2, acc.Pending())

	avg, closed := acc.Add(r)
	assert.True(t, closed)

	// divisor is window+1, inherited from the firmware: 3*100/4 = 75
	assert.Equal(t, int64(75), avg.LowVoltage)
	assert.Equal(t, int64(150), avg.LowCurrent)
	assert.Equal(t, int64(225), avg.HighVoltage)
	assert.Equal(t, int64(300), avg.HighCurrent)
}

func TestAccumulator_ResetsAfterClose(t *testing.T) {
	acc, err := NewAccumulator(2)
	require.NoError(t, err)

	acc.Add(converter.Readings{LowVoltage: 1000})
	_, closed := acc.Add(converter.Readings{LowVoltage: 1000})
	require.True(t, closed)
	assert.Equal(t, 0, acc.Pending())

	// second window must not see the first window's sums
	acc.Add(converter.Readings{LowVoltage: 30})
	avg, closed := acc.Add(converter.Readings{LowVoltage: 30})
	require.True(t, closed)
	assert.Equal(t, int64(60/3), avg.LowVoltage)
}

func TestAccumulator_DivisorConvention(t *testing.T) {
	// window of 1: a single sample is halved. This is the documented
	// sum/(N+1) behavior, asserted so nobody "fixes" it silently.
	acc, err := NewAccumulator(1)
	require.NoError(t, err)

	avg, closed := acc.Add(converter.Readings{LowVoltage: 31000, LowCurrent: 4000})
	require.True(t, closed)
	assert.Equal(t, int64(15500), avg.LowVoltage)
	assert.Equal(t, int64(2000), avg.LowCurrent)
}

func TestAccumulator_NegativeCurrents(t *testing.T) {
	acc, err := NewAccumulator(2)
	require.NoError(t, err)

	acc.Add(converter.Readings{LowCurrent: -300})
	avg, closed := acc.Add(converter.Readings{LowCurrent: -300})
	require.True(t, closed)
	assert.Equal(t, int64(-200), avg.LowCurrent)
}
