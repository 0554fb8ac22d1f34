package friendly

import (
	"strings"
	"testing"

	"github.com/valyala/fasthttp"
)

func TestClassify_Priority(t *testing.T) {
	cases := []struct {
		name   string
		status int
		text   string
		want   Category
	}{
		{"429 status", 429, "", UpstreamBusy},
		{"rate limit text", 200, "Rate limit reached for requests", UpstreamBusy},
		{"quota text", 400, "Resource has been exhausted (e.g. check quota).", UpstreamBusy},
		{"billing", 403, "billing hard limit reached", PaymentRequired},
		{"401", 401, "", AuthFailure},
		{"bad api key text", 400, "API key not valid. Please pass a valid API key.", AuthFailure},
		{"404", 404, "", RouteNotFound},
		{"timeout status", 504, "", Timeout},
		{"timed out text", 200, "request timed out", Timeout},
		{"overloaded", 503, "The model is overloaded. Please try again later.", UpstreamBusy},
		{"bare 503", 503, "", UpstreamBusy},
		{"bare 402", 402, "", PaymentRequired},
		{"bad gateway", 502, "", BadGateway},
		{"malformed", 400, "Invalid JSON payload received.", MalformedRequest},
		{"safety", 200, "Response blocked by safety settings", SafetyBlock},
		{"unknown model", 200, "unknown model requested", ModelUnavailable},
		{"bare 5xx", 500, "", Unknown},
		{"nothing matches", 418, "teapot", Unknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.status, tc.text); got != tc.want {
				t.Errorf("Classify(%d, %q) = %s, want %s", tc.status, tc.text, got, tc.want)
			}
		})
	}
}

func TestClassify_RateLimitBeatsAuth(t *testing.T) {
	// A 403 whose body talks about quota is a quota problem, not an auth one.
	if got := Classify(403, "quota exceeded for this project"); got != UpstreamBusy {
		t.Errorf("got %s, want %s", got, UpstreamBusy)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	first := Classify(503, "model is overloaded")
	for i := 0; i < 10; i++ {
		if got := Classify(503, "model is overloaded"); got != first {
			t.Fatalf("classification changed between calls: %s vs %s", first, got)
		}
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	if got := Classify(200, "RATE LIMIT"); got != UpstreamBusy {
		t.Errorf("got %s", got)
	}
}

func TestMessage_NeverLeaksRawText(t *testing.T) {
	raw := `{"error":{"message":"secret internal detail"}}`
	cat := Classify(500, raw)
	if strings.Contains(Message(cat), "secret") {
		t.Error("raw upstream text leaked into the friendly message")
	}
}

func TestMessage_AllCategoriesCovered(t *testing.T) {
	cats := []Category{
		MissingCredential, MalformedRequest, AuthFailure, RouteNotFound,
		Timeout, UpstreamBusy, BadGateway, PaymentRequired, SafetyBlock,
		ModelUnavailable, EmptyContent, Unknown,
	}
	for _, c := range cats {
		if Message(c) == "" {
			t.Errorf("no message for %s", c)
		}
		if Status(c) == 0 {
			t.Errorf("no status for %s", c)
		}
	}
}

func TestSnippet_TruncatesAndFoldsNewlines(t *testing.T) {
	long := strings.Repeat("x", 600) + "\nline two"
	s := Snippet(long)
	if len(s) != 500 {
		t.Errorf("snippet length = %d, want 500", len(s))
	}
	if strings.ContainsAny(s, "\r\n") {
		t.Error("snippet must be header-safe")
	}
}

func TestWrite_Headers(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	Write(ctx, UpstreamBusy, 429, "model-a", 120, "rate limit exceeded\nretry later")

	if ctx.Response.StatusCode() != 429 {
		t.Errorf("status = %d, want 429", ctx.Response.StatusCode())
	}
	if got := string(ctx.Response.Header.Peek("X-Origin-Status")); got != "429" {
		t.Errorf("X-Origin-Status = %q", got)
	}
	if got := string(ctx.Response.Header.Peek("X-Model-Used")); got != "model-a" {
		t.Errorf("X-Model-Used = %q", got)
	}
	if got := string(ctx.Response.Header.Peek("X-Trace")); got != "ms=120" {
		t.Errorf("X-Trace = %q", got)
	}
	if got := string(ctx.Response.Header.Peek("X-Upstream-Snippet")); strings.ContainsAny(got, "\r\n") || got == "" {
		t.Errorf("X-Upstream-Snippet = %q", got)
	}
}

// Failures with no upstream call behind them echo the response status as the
// origin status instead of a meaningless zero.
func TestWrite_NoOriginStatusEchoesResponseStatus(t *testing.T) {
	cases := []struct {
		cat  Category
		want string
	}{
		{MissingCredential, "401"},
		{RouteNotFound, "404"},
	}
	for _, tc := range cases {
		ctx := &fasthttp.RequestCtx{}
		Write(ctx, tc.cat, 0, "", 0, "")
		if got := string(ctx.Response.Header.Peek("X-Origin-Status")); got != tc.want {
			t.Errorf("Write(%s, origin 0): X-Origin-Status = %q, want %q", tc.cat, got, tc.want)
		}
	}
}

func TestStatus_Mapping(t *testing.T) {
	if Status(EmptyContent) != 502 {
		t.Errorf("EmptyContent must map to 502, got %d", Status(EmptyContent))
	}
	if Status(MissingCredential) != 401 {
		t.Errorf("MissingCredential must map to 401, got %d", Status(MissingCredential))
	}
	if Status(Timeout) != 504 {
		t.Errorf("Timeout must map to 504, got %d", Status(Timeout))
	}
}
