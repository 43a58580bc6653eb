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

package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"mpptd/internal/config"
	"mpptd/internal/events"
	"mpptd/pkg/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTService publishes each control update to an MQTT broker as
// retained JSON, so home-automation consumers always see the latest
// operating point. Disabled when no broker address is configured.
type MQTTService struct {
	conf *config.Config
	log  *logger.Logger
}

func NewMQTT(conf *config.Config) *MQTTService {
	return &MQTTService{
		conf: conf,
		log:  logger.New("MQTT"),
	}
}

func (s *MQTTService) Run(ctx context.Context) {
	addr := s.conf.Telemetry.MQTTAddr
	if addr == "" {
		s.log.Info("no broker configured, publisher disabled")
		return
	}

	s.log.Info("Running...")
	defer s.log.Info("Stopped")

	opts := mqtt.NewClientOptions().
		AddBroker(addr).
		SetClientID("mpptd").
		SetAutoReconnect(true).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		s.log.Error("broker connect failed: %v", token.Error())
		return
	}
	defer client.Disconnect(250)

	topic := s.conf.Telemetry.MQTTTopicPrefix + "/state"
	updates, _ := s.conf.EventBus.Subscribe(ctx, events.TopicControl, true)

	for {
		select {
		case ev, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev.(events.ControlUpdate))
			if err != nil {
				s.log.Error("marshal update: %v", err)
				continue
			}
			if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
				s.log.Error("publish failed: %v", token.Error())
			}

		case <-ctx.Done():
			return
		}
	}
}
