package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/config"
)

type stubConnections struct {
	snapshot domain.ConnectionSnapshot
}

func (s *stubConnections) Snapshot() domain.ConnectionSnapshot {
	return s.snapshot
}

type stubAttacher struct {
	mu      sync.Mutex
	origins []string
}

func (s *stubAttacher) Attach(w http.ResponseWriter, _ *http.Request, origin string) error {
	s.mu.Lock()
	s.origins = append(s.origins, origin)
	s.mu.Unlock()
	w.WriteHeader(http.StatusSwitchingProtocols)
	return nil
}

type stubEvents struct {
	items [][]byte
	err   error
}

func (s *stubEvents) ReadAll(context.Context) ([][]byte, error) {
	return s.items, s.err
}

type stubCounter struct {
	count int64
	err   error
}

func (s *stubCounter) Record(context.Context, string, time.Time) error { return nil }

func (s *stubCounter) LastHour(context.Context) (int64, error) {
	return s.count, s.err
}

var errBackendDown = errors.New("backend down")

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:              "test",
		Port:                "0",
		AllowedOrigins:      "*",
		MessageHistoryLimit: 100,
		APIRateLimit:        1000,
		APIRateBurst:        1000,
	}
}

func newTestServer(t *testing.T, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		echo:        echo.New(),
		config:      testConfig(),
		connections: &stubConnections{snapshot: domain.ConnectionSnapshot{ByOrigin: map[string]int{}}},
		websocket:   &stubAttacher{},
		recent:      &stubEvents{},
		counter:     &stubCounter{},
	}

	for _, opt := range opts {
		opt(srv)
	}

	// Register routes so endpoints are available for testing
	srv.registerRoutes()

	return srv
}

func withConfig(mutate func(*config.Config)) func(*Server) {
	return func(s *Server) {
		mutate(s.config)
	}
}

func withConnections(snapshot domain.ConnectionSnapshot) func(*Server) {
	return func(s *Server) {
		s.connections = &stubConnections{snapshot: snapshot}
	}
}

func withRecent(events *stubEvents) func(*Server) {
	return func(s *Server) {
		s.recent = events
	}
}

func withCounter(counter *stubCounter) func(*Server) {
	return func(s *Server) {
		s.counter = counter
	}
}

func withWebSocket(ws websocketAttacher) func(*Server) {
	return func(s *Server) {
		s.websocket = ws
	}
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

// serve routes one request through the full middleware chain.
func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}
