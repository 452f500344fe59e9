// Package server exposes the operational HTTP surface: health and
// Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/javierg83/lic-etl-semantic-extractor/internal/queue/streams"
)

// Ops is the worker's ops endpoint.
type Ops struct {
	echo   *echo.Echo
	logger *log.Logger
}

// QueueStatusFunc reports intake queue state for the /queuez route.
type QueueStatusFunc func(ctx context.Context) (streams.GroupStatus, error)

// OpsOption configures optional ops routes.
type OpsOption func(*Ops)

// WithQueueStatus mounts GET /queuez backed by fn, exposing consumer
// group lag and pending counts for the extraction intake stream.
func WithQueueStatus(fn QueueStatusFunc) OpsOption {
	return func(o *Ops) {
		if fn == nil {
			return
		}
		o.echo.GET("/queuez", func(c echo.Context) error {
			status, err := fn(c.Request().Context())
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
			}
			return c.JSON(http.StatusOK, status)
		})
	}
}

// NewOps builds the ops server. registry may be nil, in which case the
// default Prometheus handler is mounted.
func NewOps(registry *prometheus.Registry, logger *log.Logger, opts ...OpsOption) *Ops {
	if logger == nil {
		logger = log.New(log.Writer(), "[OPS] ", log.LstdFlags)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	} else {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	ops := &Ops{echo: e, logger: logger}
	for _, opt := range opts {
		opt(ops)
	}
	return ops
}

// Start blocks serving the ops endpoint until Shutdown.
func (o *Ops) Start(addr string) error {
	o.logger.Printf("ops server listening on %s", addr)
	if err := o.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (o *Ops) Shutdown(ctx context.Context) error {
	return o.echo.Shutdown(ctx)
}
