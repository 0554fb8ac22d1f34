// Package friendly maps terminal upstream failures to a small fixed set of
// human-readable messages plus machine-readable diagnostic headers.
//
// Classification is a pure function over (status, raw upstream text): an
// ordered rule list evaluated top to bottom. Raw upstream text never reaches
// the response body; a truncated snippet is preserved in the
// X-Upstream-Snippet header for operators.
package friendly

import (
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"
)

// Category is the stable error taxonomy exposed in the X-Debug-Note header.
type Category string

const (
	MissingCredential Category = "missing_credential"
	MalformedRequest  Category = "malformed_request"
	AuthFailure       Category = "auth_failure"
	RouteNotFound     Category = "route_not_found"
	Timeout           Category = "timeout"
	UpstreamBusy      Category = "upstream_busy"
	BadGateway        Category = "bad_gateway"
	PaymentRequired   Category = "payment_required"
	SafetyBlock       Category = "safety_block"
	ModelUnavailable  Category = "model_unavailable"
	EmptyContent      Category = "empty_content"
	Unknown           Category = "unknown_upstream_error"
)

// snippetLimit caps the raw upstream text carried in X-Upstream-Snippet.
const snippetLimit = 500

// messages maps each category to one short non-technical sentence.
var messages = map[Category]string{
	MissingCredential: "The server is missing its AI API key. Please contact the site owner.",
	MalformedRequest:  "The AI service could not understand the request. Please try again.",
	AuthFailure:       "The AI service rejected our credentials. Please contact the site owner.",
	RouteNotFound:     "Unknown path. Check the request URL.",
	Timeout:           "The AI took too long to answer. Please try again.",
	UpstreamBusy:      "Lots of traffic right now—try again in a few seconds.",
	BadGateway:        "The AI service had a hiccup. Please try again.",
	PaymentRequired:   "The AI service account needs attention. Please contact the site owner.",
	SafetyBlock:       "The AI declined to answer this one. Try a different question.",
	ModelUnavailable:  "That AI model is unavailable right now. Please try again later.",
	EmptyContent:      "The AI returned an empty answer. Please try again.",
	Unknown:           "Something went wrong generating the question. Please try again.",
}

// statuses maps each category to the HTTP status returned to the caller.
var statuses = map[Category]int{
	MissingCredential: fasthttp.StatusUnauthorized,
	MalformedRequest:  fasthttp.StatusBadRequest,
	AuthFailure:       fasthttp.StatusUnauthorized,
	RouteNotFound:     fasthttp.StatusNotFound,
	Timeout:           fasthttp.StatusGatewayTimeout,
	UpstreamBusy:      fasthttp.StatusTooManyRequests,
	BadGateway:        fasthttp.StatusBadGateway,
	PaymentRequired:   fasthttp.StatusPaymentRequired,
	SafetyBlock:       fasthttp.StatusUnprocessableEntity,
	ModelUnavailable:  fasthttp.StatusBadGateway,
	EmptyContent:      fasthttp.StatusBadGateway,
	Unknown:           fasthttp.StatusInternalServerError,
}

// rule is one (predicate, category) pair of the ordered classification list.
type rule struct {
	match func(status int, text string) bool
	cat   Category
}

func anyOf(markers ...string) func(int, string) bool {
	return func(_ int, text string) bool {
		for _, m := range markers {
			if strings.Contains(text, m) {
				return true
			}
		}
		return false
	}
}

// rules are evaluated top to bottom; the first match wins. The text argument
// is already lower-cased.
var rules = []rule{
	{func(s int, t string) bool {
		return s == fasthttp.StatusTooManyRequests ||
			anyOf("rate limit", "quota", "too many request", "resource has been exhausted")(s, t)
	}, UpstreamBusy},
	{func(s int, t string) bool {
		return s == fasthttp.StatusPaymentRequired ||
			anyOf("billing", "payment", "purchase", "credit")(s, t)
	}, PaymentRequired},
	{func(s int, t string) bool {
		return s == fasthttp.StatusUnauthorized || s == fasthttp.StatusForbidden ||
			anyOf("api key", "unauthorized", "unauthenticated", "permission")(s, t)
	}, AuthFailure},
	{func(s int, t string) bool {
		return s == fasthttp.StatusNotFound || anyOf("not found", "unknown path")(s, t)
	}, RouteNotFound},
	{func(s int, t string) bool {
		return s == fasthttp.StatusRequestTimeout || s == fasthttp.StatusGatewayTimeout ||
			anyOf("timeout", "timed out", "deadline")(s, t)
	}, Timeout},
	{func(s int, t string) bool {
		return s == fasthttp.StatusServiceUnavailable ||
			anyOf("overloaded", "temporarily unavailable", "busy", "try again later")(s, t)
	}, UpstreamBusy},
	{func(s int, t string) bool {
		return s == fasthttp.StatusBadGateway || anyOf("bad gateway", "upstream")(s, t)
	}, BadGateway},
	{func(s int, t string) bool {
		return s == fasthttp.StatusBadRequest ||
			anyOf("invalid argument", "malformed", "schema", "invalid json")(s, t)
	}, MalformedRequest},
	{anyOf("safety", "blocked", "content policy", "prohibited"), SafetyBlock},
	{anyOf("model not", "unknown model", "unsupported model"), ModelUnavailable},
	{func(s int, _ string) bool { return s >= 500 && s < 600 }, Unknown},
}

// Classify maps an upstream (status, raw text) pair to a Category.
// Deterministic and stateless: the same inputs always yield the same result.
func Classify(status int, rawText string) Category {
	text := strings.ToLower(rawText)
	for _, r := range rules {
		if r.match(status, text) {
			return r.cat
		}
	}
	return Unknown
}

// Message returns the human-readable sentence for a category.
func Message(cat Category) string {
	if m, ok := messages[cat]; ok {
		return m
	}
	return messages[Unknown]
}

// Status returns the caller-facing HTTP status for a category.
func Status(cat Category) int {
	if s, ok := statuses[cat]; ok {
		return s
	}
	return fasthttp.StatusInternalServerError
}

// Write emits a friendly plain-text error response with diagnostic headers.
// originStatus is the raw upstream status (0 when no upstream call was made),
// modelUsed the last model attempted (may be empty), rawText the upstream
// error text for the snippet header.
func Write(ctx *fasthttp.RequestCtx, cat Category, originStatus int, modelUsed string, elapsedMs int64, rawText string) {
	ctx.SetStatusCode(Status(cat))
	ctx.SetContentType("text/plain; charset=utf-8")

	// Failures produced before any upstream call have no origin status of
	// their own; echo the response status instead.
	if originStatus == 0 {
		originStatus = Status(cat)
	}
	ctx.Response.Header.Set("X-Origin-Status", fmt.Sprintf("%d", originStatus))
	if modelUsed != "" {
		ctx.Response.Header.Set("X-Model-Used", modelUsed)
	}
	ctx.Response.Header.Set("X-Trace", fmt.Sprintf("ms=%d", elapsedMs))
	if s := Snippet(rawText); s != "" {
		ctx.Response.Header.Set("X-Upstream-Snippet", s)
	}
	ctx.Response.Header.Set("X-Debug-Note", string(cat))

	ctx.SetBodyString(Message(cat))
}

// Snippet truncates raw upstream text to the diagnostic limit and folds
// newlines so the value is header-safe.
func Snippet(rawText string) string {
	s := strings.TrimSpace(rawText)
	if len(s) > snippetLimit {
		s = s[:snippetLimit]
	}
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
