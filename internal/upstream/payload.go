// Package upstream builds, sends, and unwraps generateContent calls against
// the model endpoint. One Attempt per call; the API key travels as a query
// parameter per the upstream's auth scheme.
package upstream

import (
	"github.com/mathtrainer/llm-gateway/internal/chat"
)

// Mode selects the generation profile for a single attempt.
type Mode string

const (
	// ModeNormal is used for the first call to the primary model.
	ModeNormal Mode = "normal"

	// ModeLite is the reduced-budget, lower-temperature profile used for the
	// delayed fallback call and for the single retry.
	ModeLite Mode = "lite"
)

// Token budget policy. The gateway only ever generates one short quiz
// question (or one short solution snippet) per call, so budgets are tight.
const (
	baseBudget       = 240
	solverBaseBudget = 150
	hintCeiling      = 320
	liteBudgetCap    = 180
)

// Sampling parameters per mode.
const (
	normalTemperature = 0.6
	liteTemperature   = 0.5
	topP              = 0.9
)

// harmCategories are the four standard harm categories. All are set to
// BLOCK_NONE: the gateway only generates benign arithmetic word problems and
// must not be silently truncated by default moderation thresholds.
var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// tokenBudget resolves the max-output-token budget for a request and mode.
// A caller hint replaces the base budget, capped at hintCeiling; lite mode
// additionally caps the result at liteBudgetCap.
func tokenBudget(req *chat.Request, mode Mode) int {
	budget := baseBudget
	if req.Solver {
		budget = solverBaseBudget
	}
	if req.MaxTokens > 0 {
		budget = min(req.MaxTokens, hintCeiling)
	}
	if mode == ModeLite {
		budget = min(budget, liteBudgetCap)
	}
	return budget
}

// buildPayload turns a normalized request into the upstream request document.
func buildPayload(req *chat.Request, mode Mode) *generateRequest {
	conv := req.Conversation()
	contents := make([]content, 0, len(conv))
	for _, t := range conv {
		role := "user"
		if t.Role == chat.RoleAssistant {
			role = "model"
		}
		contents = append(contents, content{
			Role:  role,
			Parts: []part{{Text: t.Content}},
		})
	}

	temp := normalTemperature
	if mode == ModeLite {
		temp = liteTemperature
	}

	cfg := generationConfig{
		Temperature:     temp,
		TopP:            topP,
		MaxOutputTokens: tokenBudget(req, mode),
	}
	// Solver answers are short HTML snippets; forcing JSON mode would corrupt
	// them, so the format hint is only attached to generator requests.
	if !req.Solver {
		cfg.ResponseMIMEType = "application/json"
	}

	safety := make([]safetySetting, len(harmCategories))
	for i, c := range harmCategories {
		safety[i] = safetySetting{Category: c, Threshold: "BLOCK_NONE"}
	}

	payload := &generateRequest{
		Contents:         contents,
		GenerationConfig: cfg,
		SafetySettings:   safety,
	}

	if sys := req.SystemInstruction(); sys != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: sys}}}
	}

	return payload
}
