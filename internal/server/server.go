package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/internal/store"
	"github.com/mohammad-safakhou/researcher/models"
)

// Runner executes one research run and records it.
type Runner interface {
	Run(ctx context.Context, query, trigger string) (research.State, models.Run, error)
}

// RunReader reads archived runs.
type RunReader interface {
	GetRun(ctx context.Context, id string) (models.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]models.Run, error)
}

// Searcher finds archived briefs by text.
type Searcher interface {
	Search(q string, limit int) ([]store.Hit, error)
}

// Deps wires the server to the rest of the application. Runs, Index and
// Metrics may be nil; the matching routes then answer 503 or are omitted.
type Deps struct {
	Config  config.ServerConfig
	Runner  Runner
	Runs    RunReader
	Index   Searcher
	Metrics http.Handler
	Logger  logrus.FieldLogger
	// RunTimeout bounds synchronous research requests; zero means none.
	RunTimeout time.Duration
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.HTTPErrorHandler = errorHandler(d.Logger)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	api := e.Group("/api")
	auth := &AuthHandler{Config: d.Config}
	auth.Register(api.Group("/auth"))

	rh := &ResearchHandler{Runner: d.Runner, Runs: d.Runs, Index: d.Index, Logger: d.Logger, RunTimeout: d.RunTimeout}
	rh.Register(api.Group("/research"), d.Config)
	return e
}

// errorHandler renders every error as a JSON envelope and logs it.
func errorHandler(logger logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		entry := logger.WithFields(logrus.Fields{
			"status": code,
			"method": req.Method,
			"path":   req.URL.Path,
			"remote": c.RealIP(),
		})
		if code >= http.StatusInternalServerError {
			entry.WithError(err).Error("request failed")
		} else {
			entry.Debug(msg)
		}
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, e *echo.Echo, logger logrus.FieldLogger) error {
	if addr == "" {
		addr = ":10001"
	}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("listening")
		errCh <- e.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
