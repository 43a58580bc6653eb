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

// Package control runs the periodic control loop: sample, average,
// check the safety interlock, regulate, apply the duty cycle, report.
package control

import (
	"context"
	"sync"
	"time"

	"mpptd/internal/config"
	"mpptd/internal/control/mppt"
	"mpptd/internal/control/pictrl"
	"mpptd/internal/control/safety"
	"mpptd/internal/control/sample"
	"mpptd/internal/converter"
	"mpptd/internal/events"
	"mpptd/pkg/logger"
)

// Snapshot is a consistent copy of the loop state for external readers
// (web page, telemetry, MQTT). It is only written between ticks.
type Snapshot struct {
	Time time.Time `json:"time"`

	LowVoltage  int64 `json:"low_side_voltage"`
	LowCurrent  int64 `json:"low_side_current"`
	HighVoltage int64 `json:"high_side_voltage"`
	HighCurrent int64 `json:"high_side_current"`

	Duty     int     `json:"duty_cycle"`
	Integral float64 `json:"integral"`
	Safety   string  `json:"safety"`
	Mode     string  `json:"mode"`
}

// Service owns the entire ControlState: duty cycle, previous averaged
// values, the PI accumulator and the interlock. All of it is mutated
// only inside tick(), which runs on a single goroutine; anything else
// reads through Snapshot().
type Service struct {
	conf *config.Config
	conv converter.Converter
	log  *logger.Logger

	pi        *pictrl.Regulator
	ic        *mppt.Engine
	interlock *safety.Interlock
	acc       *sample.Accumulator

	// tick-owned state
	duty      int
	prevLowV  int64
	prevLowI  int64
	havePrev  bool
	heartbeat bool
	skipped   int

	mu   sync.RWMutex
	snap Snapshot
}

// New wires the control loop. The config has already been validated,
// so constructor errors here indicate a programming mistake.
func New(conf *config.Config, conv converter.Converter) *Service {
	log := logger.New("Control")

	ic, err := mppt.NewEngine(
		conf.Control.VoltageErrorRangeMV,
		conf.Control.CurrentErrorRangeMA,
		conf.Control.DutyStep,
	)
	if err != nil {
		log.Fatal("mppt engine: %v", err)
	}

	acc, err := sample.NewAccumulator(conf.Control.AveragingWindow)
	if err != nil {
		log.Fatal("averaging buffer: %v", err)
	}

	pi := pictrl.NewRegulator(conf.Control.Kp, conf.Control.Ki, conf.Control.Kd).
		WithOutputLimits(conf.Control.DutyMin, conf.Control.DutyMax).
		WithAntiWindup(true)

	return &Service{
		conf:      conf,
		conv:      conv,
		log:       log,
		pi:        pi,
		ic:        ic,
		interlock: safety.NewInterlock(conf.Safety, conf.Control.DutyMin, conf.Control.DutyMax),
		acc:       acc,
		duty:      conf.Control.DutyInitial,
	}
}

// Run seeds the duty cycle, then ticks at the configured period until
// the context is canceled. Ticks execute synchronously on this
// goroutine, so a tick can never overlap the next one; if a tick
// overruns the period the ticker simply drops intervals.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")

	s.seedDutyCycle()
	if err := s.conv.ApplyDutyCycle(uint16(s.duty)); err != nil {
		s.log.Error("initial duty apply failed: %v", err)
	}
	s.publishSnapshot(sample.Averaged{}, time.Now())

	ticker := time.NewTicker(time.Duration(s.conf.Control.PeriodMicros) * time.Microsecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-ctx.Done():
			return
		}
	}
}

// seedDutyCycle picks the starting duty from the present high-side
// voltage so the output begins near the desired setpoint instead of
// slewing from an arbitrary value. Falls back to the configured
// initial duty when the sensor is not readable yet.
func (s *Service) seedDutyCycle() {
	highV, err := s.conv.ReadHighSideVoltage()
	if err != nil || highV <= 0 {
		s.log.Info("seeding duty from config: %d", s.duty)
		return
	}

	duty := int(s.conf.Control.DesiredVoltageMV * 1024 / highV)
	s.duty = s.clampDuty(duty)
	s.log.Info("seeding duty from high side %d mV: %d", highV, s.duty)
}

// tick is the periodic entry point. It runs to completion before the
// next tick can fire.
func (s *Service) tick() {
	r, err := converter.ReadAll(s.conv)
	if err != nil {
		// sensor fault: keep the previous duty, report, stay alive
		s.skipped++
		s.log.Debug("sensor read failed, skipping tick: %v", err)
		return
	}

	avg, closed := s.acc.Add(r)
	if !closed {
		return
	}

	now := time.Now()
	state, changed := s.interlock.Check(avg.LowVoltage)

	if state == safety.Shutdown {
		s.duty = s.interlock.ProtectiveDuty(avg.HighVoltage)
		if err := s.conv.ApplyDutyCycle(uint16(s.duty)); err != nil {
			s.log.Error("protective duty apply failed: %v", err)
		}
		s.report(avg, now, 0, changed)
		s.rollWindow(avg)
		s.toggleHeartbeat()
		s.publishSnapshot(avg, now)
		return
	}

	decision := s.regulate(avg)

	if err := s.conv.ApplyDutyCycle(uint16(s.duty)); err != nil {
		s.log.Error("duty apply failed: %v", err)
	}

	s.report(avg, now, decision, changed)
	s.rollWindow(avg)
	s.toggleHeartbeat()
	s.publishSnapshot(avg, now)
}

// regulate applies the configured control law(s) and returns the IC
// decision (0 in pi-only mode). The resulting duty is clamped here,
// never inside the engines.
func (s *Service) regulate(avg sample.Averaged) int {
	decision := 0
	duty := s.duty

	mode := s.conf.Control.Mode
	if mode == "pi" || mode == "pi+ic" {
		if next, ok := s.pi.Update(s.conf.Control.DesiredVoltageMV, avg.LowVoltage, duty); ok {
			duty = next
		}
	}
	if mode == "ic" || mode == "pi+ic" {
		if s.havePrev {
			decision = s.ic.Decide(avg.LowVoltage, avg.LowCurrent, s.prevLowV, s.prevLowI)
			duty += decision
		}
	}

	s.duty = s.clampDuty(duty)
	return decision
}

func (s *Service) clampDuty(duty int) int {
	if duty > s.conf.Control.DutyMax {
		return s.conf.Control.DutyMax
	}
	if duty < s.conf.Control.DutyMin {
		return s.conf.Control.DutyMin
	}
	return duty
}

// rollWindow stores this window's averages as the next comparison
// baseline.
func (s *Service) rollWindow(avg sample.Averaged) {
	s.prevLowV = avg.LowVoltage
	s.prevLowI = avg.LowCurrent
	s.havePrev = true
}

func (s *Service) toggleHeartbeat() {
	s.heartbeat = !s.heartbeat
	if err := s.conv.SetHeartbeat(s.heartbeat); err != nil {
		s.log.Debug("heartbeat toggle failed: %v", err)
	}
}

// report publishes the per-window telemetry event.
func (s *Service) report(avg sample.Averaged, now time.Time, decision int, trip bool) {
	var dV, dI int64
	if s.havePrev {
		dV = avg.LowVoltage - s.prevLowV
		dI = avg.LowCurrent - s.prevLowI
	}

	update := events.ControlUpdate{
		Time:         now,
		LowVoltage:   avg.LowVoltage,
		LowCurrent:   avg.LowCurrent,
		HighVoltage:  avg.HighVoltage,
		HighCurrent:  avg.HighCurrent,
		Duty:         s.duty,
		Decision:     decision,
		DV:           dV,
		DI:           dI,
		Safety:       s.interlock.State().String(),
		SafetyTrip:   trip && s.interlock.State() == safety.Shutdown,
		SkippedTicks: s.skipped,
	}
	s.skipped = 0

	s.conf.EventBus.Publish(events.TopicControl, update)

	s.log.Debug("window: V=%d I=%d dV=%d dI=%d duty=%d decision=%+d safety=%s",
		avg.LowVoltage, avg.LowCurrent, dV, dI, s.duty, decision, update.Safety)
}

func (s *Service) publishSnapshot(avg sample.Averaged, now time.Time) {
	s.mu.Lock()
	s.snap = Snapshot{
		Time:        now,
		LowVoltage:  avg.LowVoltage,
		LowCurrent:  avg.LowCurrent,
		HighVoltage: avg.HighVoltage,
		HighCurrent: avg.HighCurrent,
		Duty:        s.duty,
		Integral:    s.pi.Integral(),
		Safety:      s.interlock.State().String(),
		Mode:        s.conf.Control.Mode,
	}
	s.mu.Unlock()
}

// Snapshot returns the loop state as of the last completed window.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
