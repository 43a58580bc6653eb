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

package main

import (
	"os"
	"path/filepath"

	"mpptd/internal/config"
	"mpptd/internal/control"
	"mpptd/internal/converter"
	"mpptd/internal/telemetry"
	"mpptd/pkg/appctx"
	"mpptd/pkg/eventbus"
	"mpptd/pkg/logger"
	"mpptd/pkg/modbus"
	"mpptd/pkg/rootserv"
	"mpptd/pkg/service"
	"mpptd/pkg/sysmon"
)

func main() {

	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}

	logger.Init(filepath.Join(rootdir, "var/logs/mpptd.log"))
	log := logger.New("Main")

	appConf := config.LoadFile(filepath.Join(rootdir, "var/config/mpptd.json"))
	appConf.EventBus = eventbus.New()
	appConf.DataDir = filepath.Join(rootdir, "var/cache")
	appConf.RootDir = rootdir

	if !filepath.IsAbs(appConf.Telemetry.LogFile) {
		appConf.Telemetry.LogFile = filepath.Join(rootdir, "var/logs", appConf.Telemetry.LogFile)
	}

	var modbusConf *modbus.Config
	if appConf.Converter.Backend == "modbus" {
		modbusConf = modbus.LoadConfig(filepath.Join(rootdir, "var/config/converter.modbus.yml"))
	}

	ctx, ctxCancel := appctx.New()

	conv, err := converter.New(ctx, appConf, modbusConf)
	if err != nil {
		log.Fatal("converter init: %v", err)
	}
	defer conv.Close()

	// init services
	server := rootserv.New(":80")
	sysMonitorService := sysmon.New()
	controlService := control.New(appConf, conv)
	telemetryService := telemetry.New(appConf)
	mqttService := telemetry.NewMQTT(appConf)

	// attach web handler enabled services
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/monitor", "System Monitor", sysMonitorService)
	server.Attach("/control", "Control Loop State", controlService)
	server.Attach("/telemetry", "Telemetry History & Live Stream", telemetryService)

	// start runnable services
	exitCh := service.Start(ctx, ctxCancel, []service.Runnable{
		telemetryService,
		mqttService,
		controlService,
		server,
	})

	// waits for all services to stop
	os.Exit(<-exitCh)
}
