package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/config"
)

type connectionSource interface {
	Snapshot() domain.ConnectionSnapshot
}

type websocketAttacher interface {
	Attach(w http.ResponseWriter, r *http.Request, origin string) error
}

type recentEvents interface {
	ReadAll(ctx context.Context) ([][]byte, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	connections connectionSource
	websocket   websocketAttacher
	recent      recentEvents
	counter     domain.MessageCounter

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, connections connectionSource, websocket websocketAttacher, recent recentEvents, counter domain.MessageCounter, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ipExtractor(cfg)

	srv := &Server{
		echo:         e,
		config:       cfg,
		connections:  connections,
		websocket:    websocket,
		recent:       recent,
		counter:      counter,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

// ipExtractor decides where the client address comes from. Without trusted proxies it is the socket
// peer; forwarding headers are only honoured when the immediate peer is a listed proxy.
func ipExtractor(cfg *config.Config) echo.IPExtractor {
	ranges, err := cfg.ProxyRanges()
	if err != nil || len(ranges) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, r := range ranges {
		opts = append(opts, echo.TrustIPRange(r))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mainly for httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
