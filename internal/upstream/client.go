package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mathtrainer/llm-gateway/internal/chat"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Synthetic statuses for attempts that never produced an upstream response.
const (
	statusTimeout   = http.StatusRequestTimeout
	statusTransport = http.StatusBadGateway
)

// Attempt records the outcome of one upstream call. It is created by
// Generate and never mutated afterwards.
type Attempt struct {
	ModelID string
	Mode    Mode
	OK      bool

	// Status is the upstream HTTP status, or a synthetic status for timeouts
	// and transport failures.
	Status int

	// Body is the raw response body: the structured success document, or the
	// upstream error text used for classification and diagnostics.
	Body string

	// Retried is set by the dispatcher when this outcome involved the single
	// transient-failure retry.
	Retried bool

	Elapsed time.Duration
}

// Client issues generateContent calls. Each call owns its own request body
// and cancellation handle; the client itself carries no per-request state and
// is safe for concurrent use.
type Client struct {
	apiKey         string
	baseURL        string
	attemptTimeout time.Duration
	httpClient     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (useful for testing and mocks).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client. attemptTimeout is the hard per-call deadline; the
// in-flight connection is cancelled when it fires.
func New(apiKey string, attemptTimeout time.Duration, opts ...Option) *Client {
	c := &Client{
		apiKey:         apiKey,
		baseURL:        defaultBaseURL,
		attemptTimeout: attemptTimeout,
		httpClient:     &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Generate performs one upstream call for the given model and mode. It always
// returns a non-nil Attempt: network failures and timeouts are folded into a
// failed Attempt with a synthetic status so the dispatcher can race and
// classify every outcome uniformly.
func (c *Client) Generate(ctx context.Context, modelID string, mode Mode, req *chat.Request) *Attempt {
	start := time.Now()
	att := &Attempt{ModelID: modelID, Mode: mode}

	body, err := json.Marshal(buildPayload(req, mode))
	if err != nil {
		att.Status = http.StatusInternalServerError
		att.Body = fmt.Sprintf("marshal payload: %v", err)
		att.Elapsed = time.Since(start)
		return att
	}

	callCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(modelID), url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		att.Status = http.StatusInternalServerError
		att.Body = fmt.Sprintf("build request: %v", err)
		att.Elapsed = time.Since(start)
		return att
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			att.Status = statusTimeout
			att.Body = fmt.Sprintf("upstream call timed out after %s", c.attemptTimeout)
		} else {
			att.Status = statusTransport
			att.Body = fmt.Sprintf("upstream transport error: %v", err)
		}
		att.Elapsed = time.Since(start)
		return att
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		att.Status = statusTransport
		att.Body = fmt.Sprintf("read upstream body: %v", err)
		att.Elapsed = time.Since(start)
		return att
	}

	att.Status = resp.StatusCode
	att.Body = string(raw)
	att.OK = resp.StatusCode >= 200 && resp.StatusCode < 300
	att.Elapsed = time.Since(start)
	return att
}
