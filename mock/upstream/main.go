// Command upstream runs a lightweight HTTP mock of the Gemini generateContent
// API. It is used for E2E testing of the gateway without real credentials:
// point GEMINI_BASE_URL at it and the race, retry, and error paths can all be
// exercised deterministically.
//
// Behaviour flags (via env):
//
//	PORT              — listen port (default 19003)
//	MOCK_LATENCY_MS   — artificial latency added to every response (default 0)
//	MOCK_SLOW_MODEL   — model id that gets extra latency (simulates a slow primary)
//	MOCK_SLOW_MS      — extra latency for MOCK_SLOW_MODEL (default 5000)
//	MOCK_ERROR_RATE   — fraction [0,1] of requests returning MOCK_ERROR_STATUS (default 0)
//	MOCK_ERROR_STATUS — status for injected errors (default 429)
//	MOCK_EMPTY_RATE   — fraction [0,1] of requests returning zero candidates (default 0)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Config holds the injection knobs shared by all handlers.
type Config struct {
	LatencyMS   int
	SlowModel   string
	SlowMS      int
	ErrorRate   float64
	ErrorStatus int
	EmptyRate   float64
}

func loadConfig() Config {
	c := Config{SlowMS: 5000, ErrorStatus: 429}

	if v := os.Getenv("MOCK_LATENCY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LatencyMS = n
		}
	}
	c.SlowModel = os.Getenv("MOCK_SLOW_MODEL")
	if v := os.Getenv("MOCK_SLOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.SlowMS = n
		}
	}
	if v := os.Getenv("MOCK_ERROR_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.ErrorRate = f
		}
	}
	if v := os.Getenv("MOCK_ERROR_STATUS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 400 && n < 600 {
			c.ErrorStatus = n
		}
	}
	if v := os.Getenv("MOCK_EMPTY_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.EmptyRate = f
		}
	}
	return c
}

// fakeQuestions is a pool of quiz questions used to build mock responses.
var fakeQuestions = []string{
	"What is 7 × 8?",
	"A train travels 120 km in 2 hours. What is its average speed?",
	"Simplify: (3x + 2) + (5x − 7).",
	"What is 15% of 240?",
	"If a rectangle has sides 6 and 9, what is its perimeter?",
	"Solve for x: 2x − 5 = 11.",
	"What is the least common multiple of 4 and 6?",
	"Round 3.456 to one decimal place.",
}

// fakeSolution is returned when the request asks for a worked solution in
// structured form.
const fakeSolution = `{"solution_html":"<p>Add 5 to both sides: 2x = 16, so x = 8.</p>"}`

func fakeQuestion() string {
	return fakeQuestions[rand.Intn(len(fakeQuestions))]
}

// applyLatency sleeps for the configured base latency plus the slow-model
// penalty when the request targets the configured slow model.
func applyLatency(cfg Config, model string) {
	ms := cfg.LatencyMS
	if cfg.SlowModel != "" && model == cfg.SlowModel {
		ms += cfg.SlowMS
	}
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}

func shouldInject(rate float64) bool {
	return rate > 0 && rand.Float64() < rate
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeGeminiError emits the Google API error envelope.
func writeGeminiError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": msg,
			"status":  http.StatusText(status),
		},
	})
}

// errorMessage returns realistic upstream error text for the given status so
// the gateway's transient classification sees what production would see.
func errorMessage(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "Resource has been exhausted (e.g. check quota). Rate limit exceeded."
	case http.StatusServiceUnavailable:
		return "The model is overloaded. Please try again later."
	case http.StatusGatewayTimeout:
		return "The request timed out."
	case http.StatusUnauthorized, http.StatusForbidden:
		return "API key not valid. Please pass a valid API key."
	default:
		return "mock injected error"
	}
}

// extractModel pulls the model id out of /v1beta/models/<model>:generateContent.
func extractModel(path string) string {
	rest := strings.TrimPrefix(path, "/v1beta/models/")
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		return rest[:i]
	}
	return rest
}

// generateRequest mirrors the fields of the real API the mock cares about.
type generateRequest struct {
	GenerationConfig struct {
		ResponseMIMEType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

func newHandler(cfg Config, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		model := extractModel(path)

		if !strings.HasSuffix(path, ":generateContent") {
			writeGeminiError(w, http.StatusNotFound, fmt.Sprintf("mock: unknown path %s", path))
			return
		}
		if r.Method != http.MethodPost {
			writeGeminiError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if r.URL.Query().Get("key") == "" {
			writeGeminiError(w, http.StatusUnauthorized, "API key not valid. Please pass a valid API key.")
			return
		}

		applyLatency(cfg, model)

		if shouldInject(cfg.ErrorRate) {
			log.Info("injecting error", slog.String("model", model), slog.Int("status", cfg.ErrorStatus))
			writeGeminiError(w, cfg.ErrorStatus, errorMessage(cfg.ErrorStatus))
			return
		}
		if shouldInject(cfg.EmptyRate) {
			log.Info("injecting empty response", slog.String("model", model))
			writeJSON(w, http.StatusOK, map[string]any{"candidates": []any{}})
			return
		}

		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		text := fakeQuestion()
		if req.GenerationConfig.ResponseMIMEType == "" {
			// No JSON hint means the gateway is in solver mode; answer with
			// the structured solution document wrapped in a code fence, the
			// worst case the response normalizer has to handle.
			text = "```json\n" + fakeSolution + "\n```"
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"role":  "model",
						"parts": []map[string]string{{"text": text}},
					},
					"finishReason": "STOP",
					"index":        0,
				},
			},
			"usageMetadata": map[string]int{
				"promptTokenCount":     12,
				"candidatesTokenCount": 40,
				"totalTokenCount":      52,
			},
			"modelVersion": model,
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeGeminiError(w, http.StatusNotFound, fmt.Sprintf("mock: unknown path %s", r.URL.Path))
	})

	return mux
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := loadConfig()

	port := os.Getenv("PORT")
	if port == "" {
		port = "19003"
	}

	log.Info("starting mock upstream",
		slog.String("addr", ":"+port),
		slog.Int("latency_ms", cfg.LatencyMS),
		slog.String("slow_model", cfg.SlowModel),
		slog.Float64("error_rate", cfg.ErrorRate),
		slog.Int("error_status", cfg.ErrorStatus),
		slog.Float64("empty_rate", cfg.EmptyRate),
	)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      newHandler(cfg, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	fmt.Println("READY")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down mock upstream")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
