// Package proxy is the request-routing and resilience core of the quiz
// gateway.
//
// POST /api/next normalizes the inbound body, races the primary model against
// a delayed fallback, retries one transient failure in lite mode, and returns
// a single plain-text payload with diagnostic headers. Every entity lives for
// exactly one request/response cycle; there is no cross-request state.
package proxy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/mathtrainer/llm-gateway/internal/chat"
	"github.com/mathtrainer/llm-gateway/internal/logger"
	"github.com/mathtrainer/llm-gateway/internal/metrics"
	"github.com/mathtrainer/llm-gateway/internal/upstream"
	"github.com/mathtrainer/llm-gateway/pkg/friendly"
	"github.com/valyala/fasthttp"
)

// GatewayOptions holds optional tuning parameters for a Gateway. All fields
// have sensible defaults and can be omitted.
type GatewayOptions struct {
	// Logger is the structured logger for request events and race
	// diagnostics. Defaults to slog.Default when nil.
	Logger *slog.Logger

	// Metrics enables Prometheus metrics collection. When nil, metrics are
	// disabled.
	Metrics *metrics.Registry

	// RequestLogger is the async per-request log sink. Optional.
	RequestLogger *logger.Logger
}

// Gateway owns the HTTP surface. The dispatcher and the upstream client are
// injected so they can be replaced with doubles in unit tests.
type Gateway struct {
	dispatcher *Dispatcher
	hasAPIKey  bool

	log       *slog.Logger
	metrics   *metrics.Registry
	reqLogger *logger.Logger

	corsOrigins []string
}

// NewGateway creates a Gateway around a configured dispatcher. hasAPIKey
// gates the missing-credential short circuit: when false every /api/next call
// fails before any network I/O.
func NewGateway(d *Dispatcher, hasAPIKey bool, opts GatewayOptions) *Gateway {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		dispatcher: d,
		hasAPIKey:  hasAPIKey,
		log:        log,
		metrics:    opts.Metrics,
		reqLogger:  opts.RequestLogger,
	}
}

// SetCORSOrigins configures the allowed CORS origins for the gateway.
func (g *Gateway) SetCORSOrigins(origins []string) {
	g.corsOrigins = origins
}

// handlePing reports liveness and the configured primary model.
func (g *Gateway) handlePing(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, map[string]any{
		"ok":      true,
		"primary": g.dispatcher.Primary(),
	})
}

// handleNext is the core handler for POST /api/next.
func (g *Gateway) handleNext(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	requestID, _ := ctx.UserValue(requestIDKey).(string)

	if g.metrics != nil {
		g.metrics.IncInFlight()
		defer func() {
			g.metrics.DecInFlight()
			g.metrics.ObserveHTTP("next", ctx.Response.StatusCode(), time.Since(start))
		}()
	}

	// 1. Normalize the body. Malformed input degrades to the default
	// two-turn request instead of failing.
	req := chat.ParseBody(ctx.PostBody())

	g.log.InfoContext(ctx, "request",
		slog.String("request_id", requestID),
		slog.Int("turns", len(req.Turns)),
		slog.Bool("solver", req.Solver),
		slog.Int("max_tokens_hint", req.MaxTokens),
	)

	// 2. Missing credential is terminal before any network call.
	if !g.hasAPIKey {
		g.fail(ctx, friendly.MissingCredential, 0, "", start, "no API key configured", requestID, req.Solver, false)
		return
	}

	// 3. Race primary against the delayed fallback.
	outcome, err := g.dispatcher.Dispatch(ctx, req)
	if err != nil {
		// The race collapsed without any attempt resolving.
		g.fail(ctx, friendly.Timeout, 0, "", start, err.Error(), requestID, req.Solver, false)
		return
	}

	if !outcome.OK {
		cat := friendly.Classify(outcome.Status, outcome.Body)
		g.fail(ctx, cat, outcome.Status, outcome.ModelID, start, outcome.Body, requestID, req.Solver, outcome.Retried)
		return
	}

	// 4. Unwrap the winning response into plain text.
	text, err := upstream.Normalize(outcome.Body, req.Solver)
	if err != nil {
		cat := friendly.EmptyContent
		if !errors.Is(err, upstream.ErrEmptyContent) {
			cat = friendly.BadGateway
		}
		g.fail(ctx, cat, outcome.Status, outcome.ModelID, start, outcome.Body, requestID, req.Solver, outcome.Retried)
		return
	}

	elapsed := time.Since(start)
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.Response.Header.Set("X-Model-Used", outcome.ModelID)
	ctx.Response.Header.Set("X-Trace", traceValue(elapsed))
	ctx.SetBodyString(text)

	g.log.DebugContext(ctx, "response_ok",
		slog.String("request_id", requestID),
		slog.String("model", outcome.ModelID),
		slog.String("mode", string(outcome.Mode)),
		slog.Duration("elapsed", elapsed),
	)
	g.logRequest(requestID, outcome.ModelID, string(outcome.Mode), req.Solver, outcome.Retried, fasthttp.StatusOK, elapsed)
}

// notFound answers every unknown path with the friendly unknown-route body.
func (g *Gateway) notFound(ctx *fasthttp.RequestCtx) {
	friendly.Write(ctx, friendly.RouteNotFound, 0, "", 0, "")
}

// fail writes a friendly error response and records it.
func (g *Gateway) fail(ctx *fasthttp.RequestCtx, cat friendly.Category, originStatus int, modelUsed string, start time.Time, rawText, requestID string, solver, retried bool) {
	elapsed := time.Since(start)
	friendly.Write(ctx, cat, originStatus, modelUsed, elapsed.Milliseconds(), rawText)

	if g.metrics != nil {
		g.metrics.RecordFriendlyError(string(cat))
	}
	g.log.ErrorContext(ctx, "request_failed",
		slog.String("request_id", requestID),
		slog.String("category", string(cat)),
		slog.Int("origin_status", originStatus),
		slog.String("model", modelUsed),
		slog.Duration("elapsed", elapsed),
	)
	g.logRequest(requestID, modelUsed, "", solver, retried, friendly.Status(cat), elapsed)
}

// logRequest enqueues an entry to the async request logger. Never blocks.
func (g *Gateway) logRequest(requestID, model, mode string, solver, retried bool, status int, elapsed time.Duration) {
	if g.reqLogger == nil {
		return
	}
	g.reqLogger.Log(logger.RequestLog{
		RequestID: requestID,
		Model:     model,
		Mode:      mode,
		Solver:    solver,
		Retried:   retried,
		Status:    status,
		LatencyMs: elapsed.Milliseconds(),
		CreatedAt: time.Now(),
	})
}

func traceValue(elapsed time.Duration) string {
	return "ms=" + strconv.FormatInt(elapsed.Milliseconds(), 10)
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
