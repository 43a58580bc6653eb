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

package modbus

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ReadValue reads a register by name and returns its decoded value as a
// float64 (already scaled and offset). Bool registers return 0 or 1.
func (c *Client) ReadValue(name string) (float64, error) {
	regDef, ok := c.config.Registers[name]
	if !ok {
		return 0, fmt.Errorf("register %q not configured", name)
	}

	nregisters := registerCount(regDef.DataType)
	raw, err := c.ReadRegisters(c.ctx, regDef.Address, nregisters)
	if err != nil {
		return 0, fmt.Errorf("register read failed for %s: %w", name, err)
	}
	if len(raw) < int(nregisters*2) {
		return 0, fmt.Errorf("register %q returned insufficient data", name)
	}

	var val float64
	switch regDef.DataType {
	case "float32":
		val = float64(bytesToFloat32(raw))
	case "int16":
		val = float64(int16(binary.BigEndian.Uint16(raw)))
	case "uint16":
		val = float64(binary.BigEndian.Uint16(raw))
	case "bool":
		if binary.BigEndian.Uint16(raw) != 0 {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported data type %q for register %q", regDef.DataType, name)
	}

	if regDef.Scale != 0 {
		val = val*regDef.Scale + regDef.Offset
	}
	return val, nil
}

// WriteValue writes a value into a named register, applying the inverse of
// the register's scale/offset transform.
func (c *Client) WriteValue(name string, value float64) error {
	regDef, ok := c.config.Registers[name]
	if !ok {
		return fmt.Errorf("register %q not configured", name)
	}
	if !regDef.Writable {
		return fmt.Errorf("register %q is not writable", name)
	}

	c.log.Debug("WriteRegister '%s' <- %v", name, value)

	if regDef.Scale != 0 {
		value = (value - regDef.Offset) / regDef.Scale
	}

	switch regDef.DataType {
	case "uint16":
		ival := int64(math.Round(value))
		if ival < 0 || ival > math.MaxUint16 {
			return fmt.Errorf("value %v out of uint16 range for register %q", value, name)
		}
		return c.WriteRegister(c.ctx, regDef.Address, uint16(ival))

	case "int16":
		ival := int64(math.Round(value))
		if ival < math.MinInt16 || ival > math.MaxInt16 {
			return fmt.Errorf("value %v out of int16 range for register %q", value, name)
		}
		return c.WriteRegister(c.ctx, regDef.Address, uint16(int16(ival)))

	case "bool":
		var v uint16
		if value != 0 {
			v = 1
		}
		return c.WriteRegister(c.ctx, regDef.Address, v)

	default:
		return fmt.Errorf("unsupported data type %q for write to register %q", regDef.DataType, name)
	}
}

func registerCount(dataType string) uint16 {
	if dataType == "float32" {
		return 2
	}
	return 1
}

func bytesToFloat32(raw []byte) float32 {
	bits := binary.BigEndian.Uint32(raw[:4])
	return math.Float32frombits(bits)
}
