package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/history"
	"github.com/hlab/insightchat/internal/llm"
	"github.com/hlab/insightchat/internal/pipeline"
	"github.com/hlab/insightchat/internal/telemetry"
)

// New builds the HTTP API around an assembled pipeline. Callers own startup
// and shutdown of the returned echo instance.
func New(cfg *config.Config, tele *telemetry.Telemetry, store history.Store) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
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
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	pipe := pipeline.New(cfg, tele)

	ch := &ContextHandler{
		Pipeline: pipe,
		LLM:      llm.NewClient(cfg.LLM, tele),
		History:  store,
	}
	ch.Register(e)

	th := &ToolsHandler{Router: pipe.Router()}
	th.Register(e.Group("/tools"))

	return e
}

// Run loads config and serves the API until the process exits.
func Run(cfgPath, addr string) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Server.Address
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	store, err := history.New(context.Background(), cfg.History)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}

	e := New(cfg, tele, store)
	return e.Start(addr)
}
