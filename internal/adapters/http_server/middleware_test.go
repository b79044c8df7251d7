package httpserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	server "tripdeals/internal/adapters/http_server"
)

func TestLogger_LevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(server.Logger(zerolog.New(&buf)))
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/missing/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) })

	cases := []struct {
		path, route, level string
		status             int
	}{
		{"/ok", "/ok", "info", 200},
		{"/missing/x", "/missing/{id}", "warn", 404},
		{"/boom", "/boom", "error", 502},
	}
	for _, c := range cases {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, c.path, nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		r.ServeHTTP(httptest.NewRecorder(), req)

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("%s: decode log line %q: %v", c.path, buf.String(), err)
		}
		if line["level"] != c.level || line["route"] != c.route || line["status"] != float64(c.status) {
			t.Fatalf("%s: unexpected log line %v", c.path, line)
		}
		if line["remote"] != "203.0.113.9" {
			t.Fatalf("%s: remote = %v", c.path, line["remote"])
		}
		if id, _ := line["request_id"].(string); id == "" {
			t.Fatalf("%s: missing request_id", c.path)
		}
	}
}
