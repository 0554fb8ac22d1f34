package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mathtrainer/llm-gateway/internal/logger"
	"github.com/mathtrainer/llm-gateway/internal/metrics"
	"github.com/mathtrainer/llm-gateway/internal/proxy"
	"github.com/mathtrainer/llm-gateway/internal/upstream"
)

// initUpstream builds the Gemini REST client. The client is created even when
// no API key is configured so routing stays intact; key absence is reported
// per request, before any network call.
func (a *App) initUpstream(_ context.Context) error {
	var opts []upstream.Option
	if a.cfg.Gemini.BaseURL != "" {
		a.log.Info("upstream endpoint override",
			slog.String("base_url", a.cfg.Gemini.BaseURL))
		opts = append(opts, upstream.WithBaseURL(a.cfg.Gemini.BaseURL))
	}

	a.client = upstream.New(a.cfg.Gemini.APIKey, a.cfg.Race.AttemptTimeout, opts...)

	if !a.cfg.HasAPIKey() {
		a.log.Warn("GEMINI_API_KEY not set; requests will fail with a missing-key error")
	}

	return nil
}

// initServices creates the Prometheus metrics registry and the async request
// logger.
func (a *App) initServices(ctx context.Context) error {
	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	rl, err := logger.New(ctx, a.log)
	if err != nil {
		return fmt.Errorf("request logger: %w", err)
	}
	a.reqLogger = rl

	return nil
}

// initGateway wires together the dispatcher, the proxy handlers, and the
// management routes.
func (a *App) initGateway(_ context.Context) error {
	d := proxy.NewDispatcher(
		a.client,
		a.cfg.PrimaryModel,
		a.cfg.FallbackModel,
		a.cfg.Race.FallbackDelay,
		a.log,
		a.prom,
	)

	gw := proxy.NewGateway(d, a.cfg.HasAPIKey(), proxy.GatewayOptions{
		Logger:        a.log,
		Metrics:       a.prom,
		RequestLogger: a.reqLogger,
	})

	gw.SetCORSOrigins(a.cfg.CORSOrigins)

	a.mgmt = &proxy.ManagementRoutes{
		Metrics: a.prom.Handler(),
	}

	a.gw = gw

	return nil
}
