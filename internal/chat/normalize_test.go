package chat

import (
	"testing"
)

func TestParseBody_BareString(t *testing.T) {
	req := ParseBody([]byte(`{"messages":"2+2?"}`))

	if len(req.Turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(req.Turns))
	}
	if req.Turns[0].Role != RoleUser || req.Turns[0].Content != "2+2?" {
		t.Errorf("unexpected turn: %+v", req.Turns[0])
	}
	if req.Solver {
		t.Error("bare string request must not be solver mode")
	}
}

func TestParseBody_MessageArray(t *testing.T) {
	body := []byte(`{"messages":[
		{"role":"system","content":"You are Math Trainer LLM Solver."},
		{"role":"user","content":"Solve 3x=9"}
	]}`)
	req := ParseBody(body)

	if len(req.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(req.Turns))
	}
	if req.Turns[1].Content != "Solve 3x=9" {
		t.Errorf("turn order not preserved: %+v", req.Turns)
	}
	if !req.Solver {
		t.Error("system turn contains the solver marker, Solver should be true")
	}
}

func TestParseBody_SolverMarkerIsCaseInsensitive(t *testing.T) {
	for _, marker := range []string{"Solver", "SOLVER", "solver"} {
		body := []byte(`{"messages":[{"role":"system","content":"quiz ` + marker + ` mode"}]}`)
		if req := ParseBody(body); !req.Solver {
			t.Errorf("marker %q not detected", marker)
		}
	}
}

func TestParseBody_SolverMarkerOnlyInSystemTurns(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":"act as a solver"}]}`)
	if req := ParseBody(body); req.Solver {
		t.Error("solver marker in a user turn must not enable solver mode")
	}
}

func TestParseBody_DefaultsMissingRoleAndContent(t *testing.T) {
	body := []byte(`{"messages":[{"content":"hi"},{"role":"assistant"}]}`)
	req := ParseBody(body)

	if req.Turns[0].Role != RoleUser {
		t.Errorf("missing role should default to user, got %q", req.Turns[0].Role)
	}
	if req.Turns[1].Content != "" {
		t.Errorf("missing content should default to empty, got %q", req.Turns[1].Content)
	}
}

func TestParseBody_MalformedFallsBackToDefault(t *testing.T) {
	cases := map[string][]byte{
		"empty body":    []byte(``),
		"not json":      []byte(`garbage`),
		"no messages":   []byte(`{}`),
		"wrong type":    []byte(`{"messages":42}`),
		"null messages": []byte(`{"messages":null}`),
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := ParseBody(body)
			if len(req.Turns) != 2 {
				t.Fatalf("expected the 2-turn default, got %d turns", len(req.Turns))
			}
			if req.Turns[0].Role != RoleSystem || req.Turns[1].Role != RoleUser {
				t.Errorf("default shape wrong: %+v", req.Turns)
			}
			if req.Solver {
				t.Error("default request must not be solver mode")
			}
		})
	}
}

func TestParseBody_MaxTokensHint(t *testing.T) {
	req := ParseBody([]byte(`{"messages":"hi","max_tokens":200}`))
	if req.MaxTokens != 200 {
		t.Errorf("expected MaxTokens=200, got %d", req.MaxTokens)
	}
}

func TestSystemInstruction_ConcatenatesWithBlankLine(t *testing.T) {
	req := ParseBody([]byte(`{"messages":[
		{"role":"system","content":"first"},
		{"role":"user","content":"q"},
		{"role":"system","content":"second"}
	]}`))

	if got := req.SystemInstruction(); got != "first\n\nsecond" {
		t.Errorf("unexpected system instruction: %q", got)
	}
}

func TestConversation_ExcludesSystemTurns(t *testing.T) {
	req := ParseBody([]byte(`{"messages":[
		{"role":"system","content":"s"},
		{"role":"user","content":"a"},
		{"role":"assistant","content":"b"}
	]}`))

	conv := req.Conversation()
	if len(conv) != 2 {
		t.Fatalf("expected 2 conversational turns, got %d", len(conv))
	}
	if conv[0].Content != "a" || conv[1].Content != "b" {
		t.Errorf("order not preserved: %+v", conv)
	}
}
