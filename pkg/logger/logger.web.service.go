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

package logger

import (
	"bufio"
	"html/template"
	"net/http"
	"os"
	"strings"
	"sync"
)

// Service implements http.Handler for debug/log control
type Service struct {
	mu sync.Mutex
}

func WebService() *Service {
	return &Service{}
}

// ServeHTTP implements http.Handler
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/toggle":
		EnableDebug(!IsDebug())
		http.Redirect(w, r, "/logger", http.StatusSeeOther)

	default:
		s.renderPage(w, r)
	}
}

func (s *Service) renderPage(w http.ResponseWriter, _ *http.Request) {
	logs, _ := s.tail(250)

	tpl := `
<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Logger Service</title>
  <style>
    body { font-family: Arial, sans-serif; margin: 2em; background: #f9f9f9; color: #333; }
    h1 { margin-bottom: 0.5em; }
    .status { margin-bottom: 1em; }
    .btn { display:inline-block; padding:0.5em 1em; margin:0.2em; font-size:0.9em;
           background:#007bff; color:white; border:none; border-radius:4px; cursor:pointer; text-decoration:none; }
    .btn:hover { background:#0056b3; }
    pre.log { background:#222; color:#eee; padding:1em; border-radius:6px; max-height:500px; overflow:auto; }
  </style>
</head>
<body>
  <h1>Logger</h1>
  <div class="status">
    <b>Debug:</b> {{if .Debug}}<span style="color:green;">ON</span>{{else}}<span style="color:red;">OFF</span>{{end}}
  </div>
  <form method="POST" action="/logger/toggle" style="display:inline;">
    <button class="btn" type="submit">Toggle Debug</button>
  </form>
  <h2>Last 250 log lines</h2>
  <pre class="log">{{.Log}}</pre>
</body>
</html>
`
	t := template.Must(template.New("page").Parse(tpl))
	_ = t.Execute(w, map[string]any{
		"Debug": IsDebug(),
		"Log":   logs,
	})
}

// tail reads last n lines of the log file
func (s *Service) tail(n int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if logFile == nil {
		return "", nil
	}
	f, err := os.Open(logFile.Name())
	if err != nil {
		return "", err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), sc.Err()
}
