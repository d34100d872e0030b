// Package httpapi serves the status endpoints of the bot process.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/m3rciful/shopbot/core/logger"
)

const component = "http"

// Options configure the status server.
type Options struct {
	// Listen is the TCP address, e.g. ":8080".
	Listen  string
	Service string
	Version string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Ready backs /healthz; nil means always ready.
	Ready func(ctx context.Context) error
}

// Server is an echo-based status server.
type Server struct {
	opts    Options
	echo    *echo.Echo
	srv     *http.Server
	started time.Time
}

// New builds the router. Call Start to listen.
func New(opts Options) *Server {
	if opts.Service == "" {
		opts.Service = "shopbot"
	}
	s := &Server{opts: opts, started: time.Now()}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		logger.Warn(c.Request().Context(), component, "request.fail",
			slog.String("path", c.Path()),
			slog.String("err", err.Error()),
		)
		c.Echo().DefaultHTTPErrorHandler(err, c)
	}
	e.Use(requestLog)

	e.GET("/", s.home)
	e.GET("/healthz", s.healthz)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}
	s.echo = e
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) home(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"service":        s.opts.Service,
		"version":        s.opts.Version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) healthz(c echo.Context) error {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		logger.Debug(c.Request().Context(), component, "request",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.Int("code", c.Response().Status),
			slog.Duration("took", logger.RoundMS(time.Since(start))),
		)
		return err
	}
}

// Start binds the listener and serves in the background. Bind errors are
// returned; later serve errors are logged.
func (s *Server) Start(ctx context.Context) error {
	if s.opts.Listen == "" {
		return errors.New("httpapi: listen address is empty")
	}
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return err
	}
	s.srv = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info(ctx, component, "server.start", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), component, "server.fail", slog.String("err", err.Error()))
		}
	}()
	return nil
}

// Shutdown stops the server gracefully. It is a no-op before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	logger.Info(ctx, component, "server.stop")
	return s.srv.Shutdown(ctx)
}
