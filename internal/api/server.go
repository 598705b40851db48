// Package api exposes the aggregated metadata over HTTP: unified anime
// documents, the title matcher, the confirmed-mapping store, and the raw
// cached upstream objects.
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/app"
	"github.com/animemeta/animemeta/internal/config"
	"github.com/animemeta/animemeta/internal/scheduler"
)

// Server handles HTTP requests for the metadata API.
type Server struct {
	echo   *echo.Echo
	app    *app.App
	sched  *scheduler.Scheduler
	cfg    *config.Config
	logger zerolog.Logger
}

// NewServer creates a new API server instance over the assembled
// component graph.
func NewServer(a *app.App, sched *scheduler.Scheduler, cfg *config.Config, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		app:    a,
		sched:  sched,
		cfg:    cfg,
		logger: logger,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID
	s.echo.Use(middleware.RequestID())

	// Request logging
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	// Gzip compression; the cached images are compressed already
	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/anidb/images/:name" || c.Path() == "/tmdb/images/:name"
		},
	}))
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	s.echo.GET("/anime/:id", s.getAnime)

	s.echo.GET("/match", s.findMatch)
	s.echo.GET("/match/:id", s.getMatch)
	s.echo.PUT("/match/:id", s.storeMatch)
	s.echo.DELETE("/match/:id", s.deleteMatch)

	s.echo.GET("/anidb/shows/:aid", s.getAnidbShow)
	s.echo.GET("/anidb/images/:name", s.getAnidbImage)
	s.echo.HEAD("/anidb/images/:name", s.headAnidbImage)

	s.echo.GET("/tmdb/shows/:lang/:sid", s.getTmdbShow)
	s.echo.GET("/tmdb/images/:name", s.getTmdbImage)
	s.echo.HEAD("/tmdb/images/:name", s.headTmdbImage)

	s.echo.GET("/tasks", s.listTasks)
	s.echo.GET("/tasks/:id", s.getTask)
	s.echo.POST("/tasks/:id/run", s.runTask)
}

// baseURL is the root for the links embedded in responses.
func (s *Server) baseURL(c echo.Context) string {
	if s.cfg.Server.BaseURL != "" {
		return s.cfg.Server.BaseURL
	}
	return c.Scheme() + "://" + c.Request().Host
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(200, map[string]string{"status": "ok"})
}

// Start begins listening on the given address. Blocks until Shutdown.
func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
