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
	"encoding/json"
	"fmt"
	"log"
	"os"

	"mpptd/pkg/eventbus"
)

// CalibrationChannel is the per-channel sensor calibration applied at
// read time: value*scale + offset.
type CalibrationChannel struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

type CalibrationConfig struct {
	LowVoltage  CalibrationChannel `json:"low_voltage"`
	LowCurrent  CalibrationChannel `json:"low_current"`
	HighVoltage CalibrationChannel `json:"high_voltage"`
	HighCurrent CalibrationChannel `json:"high_current"`
}

type ConverterConfig struct {
	Backend     string            `json:"backend"` // "sim", "serial", "modbus"
	SerialPort  string            `json:"serial_port"`
	SerialBaud  int               `json:"serial_baud"`
	Calibration CalibrationConfig `json:"calibration"`
}

type ControlConfig struct {
	Mode             string  `json:"mode"` // "pi", "ic", "pi+ic"
	PeriodMicros     int     `json:"period_us"`
	AveragingWindow  int     `json:"averaging_window"`
	DesiredVoltageMV int64   `json:"desired_voltage_mv"`
	Kp               float64 `json:"kp"`
	Ki               float64 `json:"ki"`
	Kd               float64 `json:"kd"` // accepted, currently unused by the regulator

	DutyMin     int `json:"duty_min"`
	DutyMax     int `json:"duty_max"`
	DutyInitial int `json:"duty_initial"`
	DutyStep    int `json:"duty_step"`

	VoltageErrorRangeMV int64 `json:"voltage_error_range_mv"`
	CurrentErrorRangeMA int64 `json:"current_error_range_ma"`
}

type SafetyConfig struct {
	MaxLowSideVoltageMV  int64 `json:"max_low_side_voltage_mv"`
	AutoReset            bool  `json:"auto_reset"`
	ResetLowMV           int64 `json:"reset_low_mv"`
	ResetHighMV          int64 `json:"reset_high_mv"`
	SafeHighSideTargetMV int64 `json:"safe_high_side_target_mv"`
}

type TelemetryConfig struct {
	HistoryLimit    int    `json:"history_limit"`
	LogFile         string `json:"logfile"`
	MQTTAddr        string `json:"mqtt_addr"` // empty disables the MQTT publisher
	MQTTTopicPrefix string `json:"mqtt_topic_prefix"`
}

type Config struct {
	Converter ConverterConfig `json:"converter"`
	Control   ControlConfig   `json:"control"`
	Safety    SafetyConfig    `json:"safety"`
	Telemetry TelemetryConfig `json:"telemetry"`

	// not loaded from file, but added here to
	// pass to all services alongside config
	EventBus *eventbus.Bus `json:"-"`
	DataDir  string        `json:"-"`
	RootDir  string        `json:"-"`
}

func LoadFile(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("open config: %v", err)
	}
	defer f.Close()
	var c Config
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		log.Fatalf("decode config: %v", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	return &c
}

// Default returns the configuration matching the original Atverter
// firmware constants. Used as the baseline for missing fields and by
// tests that need a known-good starting point.
func Default() *Config {
	c := &Config{
		Converter: ConverterConfig{
			Backend:    "sim",
			SerialPort: "/dev/ttyUSB0",
			SerialBaud: 38400,
			Calibration: CalibrationConfig{
				LowVoltage:  CalibrationChannel{Scale: 1.00, Offset: 36},
				LowCurrent:  CalibrationChannel{Scale: 1.00, Offset: 0},
				HighVoltage: CalibrationChannel{Scale: 0.98, Offset: 0},
				HighCurrent: CalibrationChannel{Scale: 1.00, Offset: 0},
			},
		},
		Control: ControlConfig{
			Mode:                "ic",
			PeriodMicros:        1000,
			AveragingWindow:     1000,
			DesiredVoltageMV:    8000,
			Kp:                  0.1,
			Ki:                  0.01,
			Kd:                  0,
			DutyMin:             10,
			DutyMax:             1023,
			DutyInitial:         512,
			DutyStep:            20,
			VoltageErrorRangeMV: 10,
			CurrentErrorRangeMA: 20,
		},
		Safety: SafetyConfig{
			MaxLowSideVoltageMV:  15000,
			AutoReset:            false,
			ResetLowMV:           9000,
			ResetHighMV:          15000,
			SafeHighSideTargetMV: 12000,
		},
		Telemetry: TelemetryConfig{
			HistoryLimit:    1000,
			LogFile:         "telemetry.log",
			MQTTTopicPrefix: "mpptd",
		},
	}
	return c
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Converter.Backend == "" {
		c.Converter.Backend = def.Converter.Backend
	}
	if c.Converter.SerialBaud == 0 {
		c.Converter.SerialBaud = def.Converter.SerialBaud
	}
	if c.Converter.Calibration.LowVoltage.Scale == 0 {
		c.Converter.Calibration.LowVoltage.Scale = 1
	}
	if c.Converter.Calibration.LowCurrent.Scale == 0 {
		c.Converter.Calibration.LowCurrent.Scale = 1
	}
	if c.Converter.Calibration.HighVoltage.Scale == 0 {
		c.Converter.Calibration.HighVoltage.Scale = 1
	}
	if c.Converter.Calibration.HighCurrent.Scale == 0 {
		c.Converter.Calibration.HighCurrent.Scale = 1
	}

	if c.Control.Mode == "" {
		c.Control.Mode = def.Control.Mode
	}
	if c.Control.PeriodMicros == 0 {
		c.Control.PeriodMicros = def.Control.PeriodMicros
	}
	if c.Control.AveragingWindow == 0 {
		c.Control.AveragingWindow = def.Control.AveragingWindow
	}
	if c.Control.DesiredVoltageMV == 0 {
		c.Control.DesiredVoltageMV = def.Control.DesiredVoltageMV
	}
	if c.Control.DutyMax == 0 {
		c.Control.DutyMin = def.Control.DutyMin
		c.Control.DutyMax = def.Control.DutyMax
	}
	if c.Control.DutyInitial == 0 {
		c.Control.DutyInitial = def.Control.DutyInitial
	}
	if c.Control.DutyStep == 0 {
		c.Control.DutyStep = def.Control.DutyStep
	}
	if c.Control.VoltageErrorRangeMV == 0 {
		c.Control.VoltageErrorRangeMV = def.Control.VoltageErrorRangeMV
	}
	if c.Control.CurrentErrorRangeMA == 0 {
		c.Control.CurrentErrorRangeMA = def.Control.CurrentErrorRangeMA
	}

	if c.Safety.MaxLowSideVoltageMV == 0 {
		c.Safety.MaxLowSideVoltageMV = def.Safety.MaxLowSideVoltageMV
	}
	if c.Safety.ResetLowMV == 0 {
		c.Safety.ResetLowMV = def.Safety.ResetLowMV
	}
	if c.Safety.ResetHighMV == 0 {
		c.Safety.ResetHighMV = def.Safety.ResetHighMV
	}
	if c.Safety.SafeHighSideTargetMV == 0 {
		c.Safety.SafeHighSideTargetMV = def.Safety.SafeHighSideTargetMV
	}

	if c.Telemetry.HistoryLimit == 0 {
		c.Telemetry.HistoryLimit = def.Telemetry.HistoryLimit
	}
	if c.Telemetry.LogFile == "" {
		c.Telemetry.LogFile = def.Telemetry.LogFile
	}
	if c.Telemetry.MQTTTopicPrefix == "" {
		c.Telemetry.MQTTTopicPrefix = def.Telemetry.MQTTTopicPrefix
	}
}

// Validate rejects configurations that would make the control loop
// ambiguous or unsafe. The daemon refuses to start on any error here;
// a zero voltage error range in particular would let the conductance
// comparison divide by zero.
func (c *Config) Validate() error {
	switch c.Converter.Backend {
	case "sim", "serial", "modbus":
	default:
		return fmt.Errorf("unknown converter backend %q", c.Converter.Backend)
	}
	if c.Converter.Backend == "serial" && c.Converter.SerialPort == "" {
		return fmt.Errorf("serial backend requires serial_port")
	}

	switch c.Control.Mode {
	case "pi", "ic", "pi+ic":
	default:
		return fmt.Errorf("unknown control mode %q", c.Control.Mode)
	}
	if c.Control.PeriodMicros <= 0 {
		return fmt.Errorf("period_us must be positive, got %d", c.Control.PeriodMicros)
	}
	if c.Control.AveragingWindow < 1 {
		return fmt.Errorf("averaging_window must be >= 1, got %d", c.Control.AveragingWindow)
	}
	if c.Control.VoltageErrorRangeMV <= 0 {
		return fmt.Errorf("voltage_error_range_mv must be positive, got %d", c.Control.VoltageErrorRangeMV)
	}
	if c.Control.CurrentErrorRangeMA < 0 {
		return fmt.Errorf("current_error_range_ma must not be negative, got %d", c.Control.CurrentErrorRangeMA)
	}
	if c.Control.DutyMin > c.Control.DutyMax {
		return fmt.Errorf("duty_min %d exceeds duty_max %d", c.Control.DutyMin, c.Control.DutyMax)
	}
	if c.Control.DutyMin < 0 || c.Control.DutyMax > 1023 {
		return fmt.Errorf("duty bounds [%d, %d] outside PWM range [0, 1023]",
			c.Control.DutyMin, c.Control.DutyMax)
	}
	if c.Control.DutyInitial < c.Control.DutyMin || c.Control.DutyInitial > c.Control.DutyMax {
		return fmt.Errorf("duty_initial %d outside [duty_min, duty_max]", c.Control.DutyInitial)
	}
	if c.Control.DutyStep <= 0 {
		return fmt.Errorf("duty_step must be positive, got %d", c.Control.DutyStep)
	}
	if c.Control.DesiredVoltageMV <= 0 {
		return fmt.Errorf("desired_voltage_mv must be positive, got %d", c.Control.DesiredVoltageMV)
	}

	if c.Safety.MaxLowSideVoltageMV <= 0 {
		return fmt.Errorf("max_low_side_voltage_mv must be positive, got %d", c.Safety.MaxLowSideVoltageMV)
	}
	if c.Safety.AutoReset && c.Safety.ResetLowMV >= c.Safety.ResetHighMV {
		return fmt.Errorf("reset band [%d, %d] is empty", c.Safety.ResetLowMV, c.Safety.ResetHighMV)
	}
	if c.Safety.SafeHighSideTargetMV <= 0 {
		return fmt.Errorf("safe_high_side_target_mv must be positive, got %d", c.Safety.SafeHighSideTargetMV)
	}

	return nil
}
