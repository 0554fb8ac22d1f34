// Package chat normalizes inbound request bodies into an ordered sequence of
// role-tagged turns.
//
// The browser client may send the "messages" field in three shapes: an
// OpenAI-style message array, a bare prompt string, or nothing at all. The
// three shapes are resolved exactly once here; everything downstream sees
// only []Turn.
package chat

import (
	"encoding/json"
	"strings"
)

// Roles understood by the normalizer. Unknown roles default to RoleUser.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// solverMarker flags a solver-flavoured request when it appears (case
// insensitively) in any system turn. Solver answers are short HTML snippets
// rather than JSON.
const solverMarker = "solver"

// Turn is a single conversational turn.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the normalized generation request. It is immutable once built:
// construct it with ParseBody and never mutate it afterwards.
type Request struct {
	// Turns is the ordered conversation, system turns included.
	Turns []Turn

	// MaxTokens is the caller-supplied max-token hint. 0 means unset.
	MaxTokens int

	// Solver is true when the concatenated system turns contain the solver
	// marker. Derived, never supplied directly.
	Solver bool
}

// inboundBody mirrors the POST /api/next body. The "messages" field accepts
// an array of turns OR a bare string; we keep it raw and resolve the shape in
// parseMessages.
type inboundBody struct {
	Messages  json.RawMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

// ParseBody converts a raw request body into a normalized Request.
//
// Malformed bodies never fail: when "messages" is missing or has an
// unrecognized type the fixed default two-turn request is used so the gateway
// degrades gracefully instead of rejecting the call.
func ParseBody(body []byte) *Request {
	var in inboundBody
	_ = json.Unmarshal(body, &in)

	req := &Request{
		Turns:     parseMessages(in.Messages),
		MaxTokens: in.MaxTokens,
	}
	req.Solver = detectSolver(req.Turns)
	return req
}

// parseMessages resolves the duck-typed "messages" field into ordered turns.
func parseMessages(raw json.RawMessage) []Turn {
	if len(raw) > 0 {
		// Array shape first.
		var arr []Turn
		if err := json.Unmarshal(raw, &arr); err == nil && arr != nil {
			out := make([]Turn, len(arr))
			for i, t := range arr {
				if t.Role == "" {
					t.Role = RoleUser
				}
				out[i] = t
			}
			return out
		}

		// Bare string shape.
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []Turn{{Role: RoleUser, Content: s}}
		}
	}

	return defaultTurns()
}

// defaultTurns is the fixed two-turn fallback for absent or malformed bodies.
func defaultTurns() []Turn {
	return []Turn{
		{
			Role:    RoleSystem,
			Content: "You are a math question generator for a browser quiz app.",
		},
		{
			Role:    RoleUser,
			Content: "Return compact JSON with exactly one math question.",
		},
	}
}

// detectSolver reports whether the concatenated system-turn contents contain
// the solver marker, case-insensitively.
func detectSolver(turns []Turn) bool {
	var sb strings.Builder
	for _, t := range turns {
		if t.Role == RoleSystem {
			sb.WriteString(t.Content)
			sb.WriteString("\n")
		}
	}
	return strings.Contains(strings.ToLower(sb.String()), solverMarker)
}

// SystemInstruction concatenates all system-turn contents, double-newline
// separated, into one upstream system instruction. Empty when the request has
// no system turns.
func (r *Request) SystemInstruction() string {
	parts := make([]string, 0, 1)
	for _, t := range r.Turns {
		if t.Role == RoleSystem && t.Content != "" {
			parts = append(parts, t.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Conversation returns the non-system turns in original order.
func (r *Request) Conversation() []Turn {
	out := make([]Turn, 0, len(r.Turns))
	for _, t := range r.Turns {
		if t.Role != RoleSystem {
			out = append(out, t)
		}
	}
	return out
}
