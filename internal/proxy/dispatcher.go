package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mathtrainer/llm-gateway/internal/chat"
	"github.com/mathtrainer/llm-gateway/internal/metrics"
	"github.com/mathtrainer/llm-gateway/internal/upstream"
)

// Caller issues one upstream attempt. Satisfied by *upstream.Client; replaced
// with a test double in unit tests.
type Caller interface {
	Generate(ctx context.Context, modelID string, mode upstream.Mode, req *chat.Request) *upstream.Attempt
}

// Dispatcher races the primary model against a delayed fallback model and
// applies the single-retry policy for transient failures.
//
// Per request it holds at most two live attempts plus one retry; each attempt
// owns its own request body and cancellation handle, so no mutable state is
// shared between the racing calls.
type Dispatcher struct {
	caller        Caller
	primary       string
	fallback      string
	fallbackDelay time.Duration

	log     *slog.Logger
	metrics *metrics.Registry
}

// NewDispatcher creates a Dispatcher. fallbackDelay is the head start granted
// to the primary model before the fallback call is fired.
func NewDispatcher(caller Caller, primary, fallback string, fallbackDelay time.Duration, log *slog.Logger, m *metrics.Registry) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		caller:        caller,
		primary:       primary,
		fallback:      fallback,
		fallbackDelay: fallbackDelay,
		log:           log,
		metrics:       m,
	}
}

// Primary returns the configured primary model id.
func (d *Dispatcher) Primary() string { return d.primary }

// Dispatch runs the race: primary immediately in normal mode, fallback after
// the fixed delay in lite mode. The first successful attempt wins; if both
// fail, the earliest failure is adopted and, when transient, retried exactly
// once in lite mode on the other model.
//
// The returned attempt is never nil unless err is non-nil; err is only
// returned when the caller's context ends before any attempt resolves
// (mapped to 504 at the boundary).
func (d *Dispatcher) Dispatch(ctx context.Context, req *chat.Request) (*upstream.Attempt, error) {
	requestID, _ := ctx.Value(requestIDKey).(string)

	results := make(chan *upstream.Attempt, 2)

	go func() {
		results <- d.attempt(ctx, d.primary, upstream.ModeNormal, req, requestID)
	}()

	go func() {
		timer := time.NewTimer(d.fallbackDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			results <- cancelledAttempt(d.fallback, upstream.ModeLite, ctx.Err())
		case <-timer.C:
			results <- d.attempt(ctx, d.fallback, upstream.ModeLite, req, requestID)
		}
	}()

	var first *upstream.Attempt
	select {
	case first = <-results:
	case <-ctx.Done():
		return nil, fmt.Errorf("dispatch: %w", ctx.Err())
	}

	adopted := first
	if !first.OK {
		// The race is lost only when BOTH attempts fail; wait for the other
		// one and prefer whichever succeeded.
		var second *upstream.Attempt
		select {
		case second = <-results:
		case <-ctx.Done():
			return nil, fmt.Errorf("dispatch: %w", ctx.Err())
		}
		if second.OK {
			adopted = second
		}
	}

	if adopted.OK {
		if d.metrics != nil {
			d.metrics.RecordRaceWin(adopted.ModelID)
		}
		return adopted, nil
	}

	if !isTransient(adopted.Status, adopted.Body) {
		return adopted, nil
	}

	// Exactly one retry, in lite mode, against whichever model was NOT used
	// in the adopted failing attempt. No further retries regardless of outcome.
	retryModel := d.primary
	if adopted.ModelID == d.primary {
		retryModel = d.fallback
	}

	d.log.InfoContext(ctx, "retrying_transient_failure",
		slog.String("request_id", requestID),
		slog.String("failed_model", adopted.ModelID),
		slog.Int("failed_status", adopted.Status),
		slog.String("retry_model", retryModel),
	)

	retry := d.attempt(ctx, retryModel, upstream.ModeLite, req, requestID)
	if d.metrics != nil {
		d.metrics.RecordRetry(retry.OK)
	}
	retry.Retried = true
	adopted.Retried = true
	if retry.OK {
		return retry, nil
	}
	return adopted, nil
}

// attempt performs one upstream call with logging and metrics around it.
func (d *Dispatcher) attempt(ctx context.Context, modelID string, mode upstream.Mode, req *chat.Request, requestID string) *upstream.Attempt {
	att := d.caller.Generate(ctx, modelID, mode, req)

	outcome := "success"
	if !att.OK {
		outcome = fmt.Sprintf("http_%d", att.Status)
	}
	if d.metrics != nil {
		d.metrics.ObserveUpstreamAttempt(modelID, string(mode), outcome, att.Elapsed)
	}

	if att.OK {
		d.log.DebugContext(ctx, "upstream_attempt_ok",
			slog.String("request_id", requestID),
			slog.String("model", modelID),
			slog.String("mode", string(mode)),
			slog.Duration("elapsed", att.Elapsed),
		)
	} else {
		d.log.WarnContext(ctx, "upstream_attempt_failed",
			slog.String("request_id", requestID),
			slog.String("model", modelID),
			slog.String("mode", string(mode)),
			slog.Int("status", att.Status),
			slog.Duration("elapsed", att.Elapsed),
		)
	}
	return att
}

// cancelledAttempt is the placeholder delivered when the request ends before
// the delayed fallback call ever starts. It keeps the results channel
// balanced so the race loop never blocks.
func cancelledAttempt(modelID string, mode upstream.Mode, err error) *upstream.Attempt {
	return &upstream.Attempt{
		ModelID: modelID,
		Mode:    mode,
		Status:  504,
		Body:    fmt.Sprintf("request cancelled before fallback attempt: %v", err),
	}
}
