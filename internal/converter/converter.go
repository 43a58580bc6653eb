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
	"context"
	"fmt"
	"math"

	"mpptd/internal/config"
	"mpptd/pkg/modbus"
)

// Converter is the hardware abstraction for the switching power
// converter. Voltages are millivolts, currents milliamps. PWM setup,
// gate drivers and ADC filtering live on the other side of this
// interface; the control loop only reads sensors and writes a duty
// cycle.
type Converter interface {
	ReadLowSideVoltage() (int64, error)
	ReadLowSideCurrent() (int64, error)
	ReadHighSideVoltage() (int64, error)
	ReadHighSideCurrent() (int64, error)

	ApplyDutyCycle(duty uint16) error
	SetHeartbeat(on bool) error

	Close() error
}

// Readings bundles one tick's worth of instantaneous sensor values.
type Readings struct {
	LowVoltage  int64
	LowCurrent  int64
	HighVoltage int64
	HighCurrent int64
}

// ReadAll reads all four sensors. Any single failure fails the whole
// read; the caller treats that as a skipped tick.
func ReadAll(c Converter) (Readings, error) {
	var r Readings
	var err error

	if r.LowVoltage, err = c.ReadLowSideVoltage(); err != nil {
		return r, fmt.Errorf("low side voltage: %w", err)
	}
	if r.LowCurrent, err = c.ReadLowSideCurrent(); err != nil {
		return r, fmt.Errorf("low side current: %w", err)
	}
	if r.HighVoltage, err = c.ReadHighSideVoltage(); err != nil {
		return r, fmt.Errorf("high side voltage: %w", err)
	}
	if r.HighCurrent, err = c.ReadHighSideCurrent(); err != nil {
		return r, fmt.Errorf("high side current: %w", err)
	}
	return r, nil
}

// New builds the configured backend. The modbus register map is only
// required for the modbus backend and may be nil otherwise.
func New(ctx context.Context, conf *config.Config, modbusConf *modbus.Config) (Converter, error) {
	switch conf.Converter.Backend {
	case "serial":
		return NewSerial(conf.Converter)
	case "modbus":
		if modbusConf == nil {
			return nil, fmt.Errorf("modbus backend requires a register map config")
		}
		return NewModbus(ctx, conf.Converter, modbusConf), nil
	case "sim":
		return NewSim(), nil
	default:
		return nil, fmt.Errorf("unknown converter backend %q", conf.Converter.Backend)
	}
}

// calibrate applies the channel's scale/offset to a raw sensor value.
func calibrate(raw float64, c config.CalibrationChannel) int64 {
	return int64(math.Round(raw*c.Scale + c.Offset))
}
