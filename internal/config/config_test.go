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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	conf := Default()
	require.NoError(t, conf.Validate())

	assert.Equal(t, "sim", conf.Converter.Backend)
	assert.Equal(t, "ic", conf.Control.Mode)
	assert.Equal(t, 1000, conf.Control.AveragingWindow)
	assert.Equal(t, int64(8000), conf.Control.DesiredVoltageMV)
	assert.Equal(t, int64(15000), conf.Safety.MaxLowSideVoltageMV)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpptd.json")
	body := `{
		"converter": {"backend": "sim"},
		"control": {"mode": "pi+ic", "desired_voltage_mv": 9000},
		"safety": {"auto_reset": true}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	conf := LoadFile(path)
	assert.Equal(t, "pi+ic", conf.Control.Mode)
	assert.Equal(t, int64(9000), conf.Control.DesiredVoltageMV)
	assert.True(t, conf.Safety.AutoReset)

	// unspecified fields fall back to the firmware constants
	assert.Equal(t, 20, conf.Control.DutyStep)
	assert.Equal(t, int64(10), conf.Control.VoltageErrorRangeMV)
	assert.Equal(t, int64(9000), conf.Safety.ResetLowMV)
	assert.Equal(t, 38400, conf.Converter.SerialBaud)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Converter.Backend = "spi" }},
		{"serial without port", func(c *Config) {
			c.Converter.Backend = "serial"
			c.Converter.SerialPort = ""
		}},
		{"unknown mode", func(c *Config) { c.Control.Mode = "pid" }},
		{"zero period", func(c *Config) { c.Control.PeriodMicros = 0 }},
		{"zero window", func(c *Config) { c.Control.AveragingWindow = -1 }},
		{"zero voltage error range", func(c *Config) { c.Control.VoltageErrorRangeMV = 0 }},
		{"negative current error range", func(c *Config) { c.Control.CurrentErrorRangeMA = -1 }},
		{"inverted duty bounds", func(c *Config) { c.Control.DutyMin = 900; c.Control.DutyMax = 100 }},
		{"duty above pwm range", func(c *Config) { c.Control.DutyMax = 2048 }},
		{"initial outside bounds", func(c *Config) { c.Control.DutyInitial = 5 }},
		{"zero step", func(c *Config) { c.Control.DutyStep = 0 }},
		{"zero setpoint", func(c *Config) { c.Control.DesiredVoltageMV = -8000 }},
		{"zero overvoltage limit", func(c *Config) { c.Safety.MaxLowSideVoltageMV = -1 }},
		{"empty reset band", func(c *Config) {
			c.Safety.AutoReset = true
			c.Safety.ResetLowMV = 15000
			c.Safety.ResetHighMV = 9000
		}},
		{"zero safe target", func(c *Config) { c.Safety.SafeHighSideTargetMV = -12000 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conf := Default()
			tc.mutate(conf)
			assert.Error(t, conf.Validate())
		})
	}
}

func TestValidate_AcceptsAllModes(t *testing.T) {
	for _, mode := range []string{"pi", "ic", "pi+ic"} {
		conf := Default()
		conf.Control.Mode = mode
		assert.NoError(t, conf.Validate(), mode)
	}
}
