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
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// Sim models a PV panel feeding a buck converter, for development and
// tests without hardware. The duty cycle pins the panel's operating
// voltage at highSide*duty/1024; the panel current then follows a
// single-diode-ish I-V curve, so sweeping the duty cycle sweeps the
// operating point across a genuine power maximum.
type Sim struct {
	mu sync.Mutex

	duty      uint16
	heartbeat bool

	// panel model
	openCircuitMV  float64
	shortCircuitMA float64
	kneeSharpness  float64

	// battery / high side
	highSideMV float64
	efficiency float64

	noiseMV float64
	rng     *rand.Rand
}

var _ Converter = (*Sim)(nil)

func NewSim() *Sim {
	return &Sim{
		duty:           512,
		openCircuitMV:  10000,
		shortCircuitMA: 5000,
		kneeSharpness:  9,
		highSideMV:     12000,
		efficiency:     0.93,
		noiseMV:        5,
		rng:            rand.New(rand.NewSource(42)),
	}
}

// WithNoise sets the simulated sensor noise amplitude (mV / mA).
// Zero makes the model deterministic.
func (s *Sim) WithNoise(amplitude float64) *Sim {
	s.mu.Lock()
	s.noiseMV = amplitude
	s.mu.Unlock()
	return s
}

// WithPanel overrides the panel's open-circuit voltage (mV) and
// short-circuit current (mA).
func (s *Sim) WithPanel(openCircuitMV, shortCircuitMA float64) *Sim {
	s.mu.Lock()
	s.openCircuitMV = openCircuitMV
	s.shortCircuitMA = shortCircuitMA
	s.mu.Unlock()
	return s
}

// WithHighSide overrides the battery-side voltage (mV).
func (s *Sim) WithHighSide(mv float64) *Sim {
	s.mu.Lock()
	s.highSideMV = mv
	s.mu.Unlock()
	return s
}

// panelCurrent returns the panel current (mA) at terminal voltage v (mV).
func (s *Sim) panelCurrent(v float64) float64 {
	if v <= 0 {
		return s.shortCircuitMA
	}
	if v >= s.openCircuitMV {
		return 0
	}
	// flat near short circuit, sharp knee near open circuit
	x := v / s.openCircuitMV
	return s.shortCircuitMA * (1 - math.Pow(x, s.kneeSharpness))
}

func (s *Sim) noise() float64 {
	if s.noiseMV == 0 {
		return 0
	}
	return (s.rng.Float64()*2 - 1) * s.noiseMV
}

// operatingPoint computes the panel (low-side) voltage/current and the
// high-side current for the present duty cycle. Callers hold the lock.
func (s *Sim) operatingPoint() Readings {
	lowV := s.highSideMV * float64(s.duty) / 1024.0
	if lowV > s.openCircuitMV {
		lowV = s.openCircuitMV
	}
	lowI := s.panelCurrent(lowV)
	highI := lowV * lowI / s.highSideMV * s.efficiency

	return Readings{
		LowVoltage:  int64(math.Round(lowV + s.noise())),
		LowCurrent:  int64(math.Round(lowI + s.noise())),
		HighVoltage: int64(math.Round(s.highSideMV + s.noise())),
		HighCurrent: int64(math.Round(highI + s.noise())),
	}
}

func (s *Sim) ReadLowSideVoltage() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operatingPoint().LowVoltage, nil
}

func (s *Sim) ReadLowSideCurrent() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operatingPoint().LowCurrent, nil
}

func (s *Sim) ReadHighSideVoltage() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operatingPoint().HighVoltage, nil
}

func (s *Sim) ReadHighSideCurrent() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operatingPoint().HighCurrent, nil
}

func (s *Sim) ApplyDutyCycle(duty uint16) error {
	if duty > 1023 {
		return fmt.Errorf("duty cycle %d out of range", duty)
	}
	s.mu.Lock()
	s.duty = duty
	s.mu.Unlock()
	return nil
}

// Duty returns the last applied duty cycle.
func (s *Sim) Duty() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duty
}

func (s *Sim) SetHeartbeat(on bool) error {
	s.mu.Lock()
	s.heartbeat = on
	s.mu.Unlock()
	return nil
}

// Heartbeat returns the last heartbeat state.
func (s *Sim) Heartbeat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeat
}

func (s *Sim) Close() error {
	return nil
}
