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

	"mpptd/internal/config"
	"mpptd/pkg/modbus"
)

// Register names the modbus backend resolves through the YAML register
// map. Bench setups that put the converter behind a Modbus TCP gateway
// configure addresses and scaling there, not in code.
const (
	regLowVoltage  = "low_side_voltage"
	regLowCurrent  = "low_side_current"
	regHighVoltage = "high_side_voltage"
	regHighCurrent = "high_side_current"
	regDutyCycle   = "duty_cycle"
	regHeartbeat   = "heartbeat"
)

// Modbus reads the converter's sensors from holding registers and
// writes the duty cycle back the same way.
type Modbus struct {
	client *modbus.Client
	cal    config.CalibrationConfig
}

var _ Converter = (*Modbus)(nil)

func NewModbus(ctx context.Context, conf config.ConverterConfig, regMap *modbus.Config) *Modbus {
	return &Modbus{
		client: modbus.NewClient(ctx, regMap),
		cal:    conf.Calibration,
	}
}

func (m *Modbus) read(name string, c config.CalibrationChannel) (int64, error) {
	raw, err := m.client.ReadValue(name)
	if err != nil {
		return 0, err
	}
	return calibrate(raw, c), nil
}

func (m *Modbus) ReadLowSideVoltage() (int64, error) {
	return m.read(regLowVoltage, m.cal.LowVoltage)
}

func (m *Modbus) ReadLowSideCurrent() (int64, error) {
	return m.read(regLowCurrent, m.cal.LowCurrent)
}

func (m *Modbus) ReadHighSideVoltage() (int64, error) {
	return m.read(regHighVoltage, m.cal.HighVoltage)
}

func (m *Modbus) ReadHighSideCurrent() (int64, error) {
	return m.read(regHighCurrent, m.cal.HighCurrent)
}

func (m *Modbus) ApplyDutyCycle(duty uint16) error {
	return m.client.WriteValue(regDutyCycle, float64(duty))
}

func (m *Modbus) SetHeartbeat(on bool) error {
	v := 0.0
	if on {
		v = 1.0
	}
	return m.client.WriteValue(regHeartbeat, v)
}

func (m *Modbus) Close() error {
	m.client.Close()
	return nil
}
