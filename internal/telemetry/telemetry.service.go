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

// Package telemetry is the line-oriented diagnostic sink: one record
// per control window, appended to a log file, kept in a bounded
// in-memory history and pushed to any connected websocket clients.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"

	"mpptd/internal/config"
	"mpptd/internal/events"
	"mpptd/pkg/logger"
)

type Service struct {
	conf *config.Config
	log  *logger.Logger

	mu      sync.RWMutex
	history []events.ControlUpdate

	file  *os.File
	fileM sync.Mutex

	clients *clientSync
}

func New(conf *config.Config) *Service {
	return &Service{
		conf:    conf,
		log:     logger.New("Telemetry"),
		clients: newClientSync(),
	}
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")

	f, err := os.OpenFile(s.conf.Telemetry.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		s.log.Error("cannot open telemetry log %s: %v", s.conf.Telemetry.LogFile, err)
	} else {
		s.file = f
		defer f.Close()
	}

	updates, _ := s.conf.EventBus.Subscribe(ctx, events.TopicControl, true)

	for {
		select {
		case ev, ok := <-updates:
			if !ok {
				return
			}
			s.record(ev.(events.ControlUpdate))

		case <-ctx.Done():
			s.clients.closeAll()
			return
		}
	}
}

func (s *Service) record(u events.ControlUpdate) {
	line := FormatLine(u)

	s.fileM.Lock()
	if s.file != nil {
		fmt.Fprintln(s.file, line)
	}
	s.fileM.Unlock()

	s.log.Debug("%s", line)
	if u.SafetyTrip {
		s.log.Error("Safety Shutoff Triggered")
	}

	s.mu.Lock()
	s.history = append(s.history, u)
	if limit := s.conf.Telemetry.HistoryLimit; len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.mu.Unlock()

	s.clients.broadcast(u, s.log)
}

// FormatLine renders one update in the schema the board firmware has
// always transmitted, so existing log scrapers keep working.
func FormatLine(u events.ControlUpdate) string {
	return fmt.Sprintf(
		"LowSideVoltage: %d\tLowSideCurrent: %d\tLowSidePower: %d\t"+
			"HighSideVoltage: %d\tHighSideCurrent: %d\tHighSidePower: %d\t"+
			"DutyCycle: %d\t",
		u.LowVoltage, u.LowCurrent, u.LowVoltage*u.LowCurrent/1000,
		u.HighVoltage, u.HighCurrent, u.HighVoltage*u.HighCurrent/1000,
		u.Duty,
	)
}

// History returns a copy of the recorded updates, oldest first.
func (s *Service) History() []events.ControlUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.ControlUpdate(nil), s.history...)
}
