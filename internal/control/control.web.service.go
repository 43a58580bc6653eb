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

package control

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ServeHTTP exposes the loop state for diagnostics. JSON with
// "Accept: application/json", a plain status page otherwise.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := s.Snapshot()

	if r.Header.Get("Accept") == "application/json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
	<title>Control Loop</title>
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
		table { border-collapse: collapse; margin-top: 1em; }
		th, td { border: 1px solid #ccc; padding: 0.6em 1em; text-align: left; }
		th { background: #eee; }
	</style>
</head>
<body>
	<h1>Control Loop</h1>
	<p>Mode: %s, Safety: %s</p>
	<table>
		<tr><th>Low V (mV)</th><th>Low I (mA)</th><th>High V (mV)</th><th>High I (mA)</th><th>Duty</th><th>Integral</th></tr>
		<tr><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%.4f</td></tr>
	</table>
	<p>Last window: %s</p>
</body>
</html>
`,
		snap.Mode, snap.Safety,
		snap.LowVoltage, snap.LowCurrent, snap.HighVoltage, snap.HighCurrent,
		snap.Duty, snap.Integral,
		snap.Time.Format("2006-01-02 15:04:05.000"),
	)
}
