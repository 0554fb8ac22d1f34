package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mathtrainer/llm-gateway/internal/chat"
)

func testChatReq() *chat.Request {
	return &chat.Request{Turns: []chat.Turn{{Role: chat.RoleUser, Content: "2+2?"}}}
}

func TestGenerate_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"q\":\"2+2\"}"}]}}]}`))
	}))
	defer srv.Close()

	c := New("test-key", time.Second, WithBaseURL(srv.URL))
	att := c.Generate(context.Background(), "model-a", ModeNormal, testChatReq())

	if !att.OK {
		t.Fatalf("expected success, got status=%d body=%q", att.Status, att.Body)
	}
	if att.Status != http.StatusOK {
		t.Errorf("status = %d", att.Status)
	}
	if att.ModelID != "model-a" || att.Mode != ModeNormal {
		t.Errorf("attempt metadata wrong: %+v", att)
	}
	if gotPath != "/models/model-a:generateContent" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("API key must travel as a query parameter, got %q", gotKey)
	}
	if len(gotPayload.Contents) != 1 || gotPayload.Contents[0].Parts[0].Text != "2+2?" {
		t.Errorf("payload not forwarded: %+v", gotPayload)
	}
}

func TestGenerate_UpstreamErrorCapturesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Resource has been exhausted (e.g. check quota)."}}`))
	}))
	defer srv.Close()

	c := New("k", time.Second, WithBaseURL(srv.URL))
	att := c.Generate(context.Background(), "model-a", ModeLite, testChatReq())

	if att.OK {
		t.Fatal("429 must be a failed attempt")
	}
	if att.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", att.Status)
	}
	if !strings.Contains(att.Body, "quota") {
		t.Errorf("raw error body must be preserved, got %q", att.Body)
	}
}

func TestGenerate_TimeoutIsSyntheticFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New("k", 30*time.Millisecond, WithBaseURL(srv.URL))
	start := time.Now()
	att := c.Generate(context.Background(), "model-a", ModeNormal, testChatReq())

	if att.OK {
		t.Fatal("timed-out attempt must not be OK")
	}
	if att.Status != http.StatusRequestTimeout {
		t.Errorf("status = %d, want synthetic 408", att.Status)
	}
	if !strings.Contains(att.Body, "timed out") {
		t.Errorf("body should mention the timeout, got %q", att.Body)
	}
	if time.Since(start) > time.Second {
		t.Error("call was not cancelled at the attempt timeout")
	}
}

func TestGenerate_TransportErrorIsSyntheticFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := New("k", time.Second, WithBaseURL(srv.URL))
	att := c.Generate(context.Background(), "model-a", ModeNormal, testChatReq())

	if att.OK {
		t.Fatal("transport failure must not be OK")
	}
	if att.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want synthetic 502", att.Status)
	}
}
