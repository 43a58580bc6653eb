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

package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readPower(t *testing.T, s *Sim) int64 {
	v, err := s.ReadLowSideVoltage()
	require.NoError(t, err)
	i, err := s.ReadLowSideCurrent()
	require.NoError(t, err)
	return v * i
}

func TestSim_DutyControlsOperatingPoint(t *testing.T) {
	s := NewSim().WithNoise(0)

	require.NoError(t, s.ApplyDutyCycle(512))
	assert.Equal(t, uint16(512), s.Duty())

	v, err := s.ReadLowSideVoltage()
	require.NoError(t, err)
	// 12000 * 512 / 1024
	assert.Equal(t, int64(6000), v)

	require.NoError(t, s.ApplyDutyCycle(700))
	v2, err := s.ReadLowSideVoltage()
	require.NoError(t, err)
	assert.Greater(t, v2, v)

	assert.Error(t, s.ApplyDutyCycle(1024))
}

func TestSim_VoltageCapsAtOpenCircuit(t *testing.T) {
	s := NewSim().WithNoise(0)

	require.NoError(t, s.ApplyDutyCycle(1023))
	v, err := s.ReadLowSideVoltage()
	require.NoError(t, err)
	assert.Equal(t, int64(10000), v)

	i, err := s.ReadLowSideCurrent()
	require.NoError(t, err)
	assert.Zero(t, i)
}

func TestSim_PowerCurveHasAMaximum(t *testing.T) {
	s := NewSim().WithNoise(0)

	var bestDuty uint16
	var bestPower int64
	for duty := uint16(100); duty <= 1020; duty += 20 {
		require.NoError(t, s.ApplyDutyCycle(duty))
		if p := readPower(t, s); p > bestPower {
			bestPower = p
			bestDuty = duty
		}
	}

	// the maximum must be interior, not pinned to either sweep end
	assert.Greater(t, bestDuty, uint16(100))
	assert.Less(t, bestDuty, uint16(1020))
	assert.Greater(t, bestPower, int64(0))
}

func TestSim_NoiseIsBounded(t *testing.T) {
	s := NewSim().WithNoise(5)
	require.NoError(t, s.ApplyDutyCycle(512))

	for n := 0; n < 100; n++ {
		v, err := s.ReadLowSideVoltage()
		require.NoError(t, err)
		assert.InDelta(t, 6000, float64(v), 6)
	}
}

func TestSim_Heartbeat(t *testing.T) {
	s := NewSim()
	require.NoError(t, s.SetHeartbeat(true))
	assert.True(t, s.Heartbeat())
	require.NoError(t, s.SetHeartbeat(false))
	assert.False(t, s.Heartbeat())
}
