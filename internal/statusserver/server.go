// Package statusserver exposes a local debug surface for the running
// client: health, Prometheus metrics, and a JSON snapshot of the session.
package statusserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sprintroom/roomlink/internal/session"
)

// Snapshotter is the session surface the server reads from.
type Snapshotter interface {
	Snapshot() session.Snapshot
}

// HealthChecker reports whether the upstream room service is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Server struct {
	echo      *echo.Echo
	port      string
	sess      Snapshotter
	upstream  HealthChecker
	startTime time.Time
}

func NewServer(port string, sess Snapshotter, upstream HealthChecker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		port:      port,
		sess:      sess,
		upstream:  upstream,
		startTime: time.Now(),
	}

	e.GET("/healthz", srv.handleHealth)
	e.GET("/status", srv.handleStatus)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return srv
}

// Handler exposes the underlying mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start() error {
	slog.Info("Starting status server", "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start status server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown status server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	upstream := "ok"
	if s.upstream != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.upstream.Health(ctx); err != nil {
			upstream = "unreachable"
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"upstream":       upstream,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sess.Snapshot())
}
