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
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"mpptd/internal/events"
	"mpptd/pkg/logger"

	"github.com/gorilla/websocket"
)

// clientSync tracks connected websocket clients for live streaming.
type clientSync struct {
	clients map[*websocket.Conn]bool
	mutex   sync.Mutex
}

func newClientSync() *clientSync {
	return &clientSync{clients: make(map[*websocket.Conn]bool)}
}

func (c *clientSync) broadcast(u events.ControlUpdate, log *logger.Logger) {
	data, err := json.Marshal(u)
	if err != nil {
		log.Error("failed to marshal broadcast: %v", err)
		return
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		log.Error("failed to prepare message: %v", err)
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		if err := ws.WritePreparedMessage(pm); err != nil {
			log.Error("failed to write message: %v", err)
			ws.Close()
			delete(c.clients, ws)
		}
	}
}

func (c *clientSync) add(ws *websocket.Conn) {
	c.mutex.Lock()
	c.clients[ws] = true
	c.mutex.Unlock()
}

func (c *clientSync) remove(ws *websocket.Conn) {
	c.mutex.Lock()
	delete(c.clients, ws)
	c.mutex.Unlock()
}

func (c *clientSync) closeAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		ws.Close()
		delete(c.clients, ws)
	}
}

// ServeHTTP exposes the recorded history and a live websocket stream.
//
//	/      -> recent updates as an HTML table
//	/json  -> full history as JSON
//	/ws    -> websocket, one JSON ControlUpdate per control window
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/json":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.History())

	case "/ws":
		s.serveWebSocket(w, r)

	default:
		s.renderPage(w)
	}
}

func (s *Service) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return false
			}
			if strings.Contains(origin, "localhost") {
				return true
			}
			return strings.Contains(origin, r.Host)
		},
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade websocket: %v", err)
		return
	}
	s.clients.add(ws)
	defer func() {
		s.clients.remove(ws)
		ws.Close()
	}()

	// Clients only listen; reading serves to detect disconnects.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket closed: %v", err)
			}
			return
		}
	}
}

func (s *Service) renderPage(w http.ResponseWriter) {
	history := s.History()

	// newest first, at most 50 rows on the page
	const pageRows = 50
	start := len(history) - pageRows
	if start < 0 {
		start = 0
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintln(w, `
<!DOCTYPE html>
<html>
<head>
	<title>Telemetry</title>
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
		table { border-collapse: collapse; margin-top: 1em; }
		th, td { border: 1px solid #ccc; padding: 0.4em 0.8em; text-align: right; }
		th { background: #eee; }
	</style>
</head>
<body>
	<h1>Telemetry</h1>
	<p><a href="/telemetry/json">JSON history</a> | live stream at <code>/telemetry/ws</code></p>
	<table>
	<tr><th>Time</th><th>Low V</th><th>Low I</th><th>High V</th><th>High I</th><th>Duty</th><th>dV</th><th>dI</th><th>Safety</th></tr>`)

	for i := len(history) - 1; i >= start; i-- {
		u := history[i]
		fmt.Fprintf(w, "<tr><td>%s</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%s</td></tr>\n",
			u.Time.Format("15:04:05.000"),
			u.LowVoltage, u.LowCurrent, u.HighVoltage, u.HighCurrent,
			u.Duty, u.DV, u.DI, u.Safety)
	}

	fmt.Fprintln(w, "</table></body></html>")
}
