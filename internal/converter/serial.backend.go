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
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"mpptd/internal/config"
	"mpptd/pkg/logger"

	"go.bug.st/serial"
)

const (
	// frameMaxAge bounds how stale a cached sensor frame may be before
	// reads start failing. The board streams several frames per second,
	// so anything older means the link is down.
	frameMaxAge = 3 * time.Second
)

// frame is one parsed telemetry line from the board.
type frame struct {
	readings Readings
	at       time.Time
}

// Serial talks to an Atverter-style board over USB serial. The board
// continuously streams tab-separated "Key: value" lines; the most
// recent frame is cached and served to the read methods. Duty-cycle
// and heartbeat commands are written as single lines.
type Serial struct {
	port  serial.Port
	cal   config.CalibrationConfig
	log   *logger.Logger
	wmu   sync.Mutex // serializes writes to the port
	fmu   sync.RWMutex
	last  *frame
	ctx   context.Context
	stop  context.CancelFunc
	rdone chan struct{}
}

var _ Converter = (*Serial)(nil)

// NewSerial opens the port and starts the reader goroutine.
func NewSerial(conf config.ConverterConfig) (*Serial, error) {
	mode := &serial.Mode{BaudRate: conf.SerialBaud}
	port, err := serial.Open(conf.SerialPort, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", conf.SerialPort, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Serial{
		port:  port,
		cal:   conf.Calibration,
		log:   logger.New("SerialConverter"),
		ctx:   ctx,
		stop:  cancel,
		rdone: make(chan struct{}),
	}
	go s.readFrames()
	return s, nil
}

func (s *Serial) readFrames() {
	defer close(s.rdone)

	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		r, err := parseFrame(line)
		if err != nil {
			s.log.Debug("skipping line %q: %v", line, err)
			continue
		}

		s.fmu.Lock()
		s.last = &frame{readings: r, at: time.Now()}
		s.fmu.Unlock()
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		s.log.Error("serial read stopped: %v", err)
	}
}

// parseFrame parses one telemetry line into raw (uncalibrated) readings.
// Format (tab separated, same schema the board has always emitted):
//
//	LowSideVoltage: 8123\tLowSideCurrent: 1432\tHighSideVoltage: 12110\tHighSideCurrent: 998\t...
func parseFrame(line string) (Readings, error) {
	var r Readings
	seen := 0

	for _, part := range strings.Split(line, "\t") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(key) {
		case "LowSideVoltage":
			r.LowVoltage = n
			seen++
		case "LowSideCurrent":
			r.LowCurrent = n
			seen++
		case "HighSideVoltage":
			r.HighVoltage = n
			seen++
		case "HighSideCurrent":
			r.HighCurrent = n
			seen++
		}
	}

	if seen < 4 {
		return r, fmt.Errorf("incomplete frame: %d of 4 fields", seen)
	}
	return r, nil
}

// current returns the cached frame, failing when none has arrived yet
// or the latest one is too old.
func (s *Serial) current() (Readings, error) {
	s.fmu.RLock()
	defer s.fmu.RUnlock()

	if s.last == nil {
		return Readings{}, fmt.Errorf("no sensor frame received yet")
	}
	if age := time.Since(s.last.at); age > frameMaxAge {
		return Readings{}, fmt.Errorf("sensor frame stale by %v", age)
	}
	return s.last.readings, nil
}

func (s *Serial) ReadLowSideVoltage() (int64, error) {
	r, err := s.current()
	if err != nil {
		return 0, err
	}
	return calibrate(float64(r.LowVoltage), s.cal.LowVoltage), nil
}

func (s *Serial) ReadLowSideCurrent() (int64, error) {
	r, err := s.current()
	if err != nil {
		return 0, err
	}
	return calibrate(float64(r.LowCurrent), s.cal.LowCurrent), nil
}

func (s *Serial) ReadHighSideVoltage() (int64, error) {
	r, err := s.current()
	if err != nil {
		return 0, err
	}
	return calibrate(float64(r.HighVoltage), s.cal.HighVoltage), nil
}

func (s *Serial) ReadHighSideCurrent() (int64, error) {
	r, err := s.current()
	if err != nil {
		return 0, err
	}
	return calibrate(float64(r.HighCurrent), s.cal.HighCurrent), nil
}

func (s *Serial) ApplyDutyCycle(duty uint16) error {
	return s.writeLine(fmt.Sprintf("DUTY %d", duty))
}

func (s *Serial) SetHeartbeat(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return s.writeLine(fmt.Sprintf("LED %d", v))
}

func (s *Serial) writeLine(cmd string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if _, err := s.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("serial write %q: %w", cmd, err)
	}
	return nil
}

func (s *Serial) Close() error {
	s.stop()
	err := s.port.Close()
	<-s.rdone
	return err
}
