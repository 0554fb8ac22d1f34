package upstream

import (
	"testing"

	"github.com/mathtrainer/llm-gateway/internal/chat"
)

func genReq(solver bool, hint int) *chat.Request {
	return &chat.Request{
		Turns: []chat.Turn{
			{Role: chat.RoleSystem, Content: "sys"},
			{Role: chat.RoleUser, Content: "q"},
		},
		MaxTokens: hint,
		Solver:    solver,
	}
}

func TestTokenBudget(t *testing.T) {
	cases := []struct {
		name   string
		solver bool
		hint   int
		mode   Mode
		want   int
	}{
		{"normal base", false, 0, ModeNormal, 240},
		{"solver base", true, 0, ModeNormal, 150},
		{"hint under ceiling", false, 200, ModeNormal, 200},
		{"hint capped at ceiling", false, 1000, ModeNormal, 320},
		{"hint overrides solver base", true, 300, ModeNormal, 300},
		{"lite caps normal base", false, 0, ModeLite, 180},
		{"lite keeps solver base", true, 0, ModeLite, 150},
		{"lite caps hint", false, 320, ModeLite, 180},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tokenBudget(genReq(tc.solver, tc.hint), tc.mode); got != tc.want {
				t.Errorf("tokenBudget = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestBuildPayload_SamplingPerMode(t *testing.T) {
	normal := buildPayload(genReq(false, 0), ModeNormal)
	if normal.GenerationConfig.Temperature != 0.6 {
		t.Errorf("normal temperature = %v, want 0.6", normal.GenerationConfig.Temperature)
	}
	if normal.GenerationConfig.TopP != 0.9 {
		t.Errorf("normal topP = %v, want 0.9", normal.GenerationConfig.TopP)
	}

	lite := buildPayload(genReq(false, 0), ModeLite)
	if lite.GenerationConfig.Temperature != 0.5 {
		t.Errorf("lite temperature = %v, want 0.5", lite.GenerationConfig.Temperature)
	}
}

func TestBuildPayload_RoleMapping(t *testing.T) {
	req := &chat.Request{Turns: []chat.Turn{
		{Role: chat.RoleUser, Content: "a"},
		{Role: chat.RoleAssistant, Content: "b"},
		{Role: "weird", Content: "c"},
	}}

	p := buildPayload(req, ModeNormal)
	if len(p.Contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(p.Contents))
	}
	wantRoles := []string{"user", "model", "user"}
	for i, c := range p.Contents {
		if c.Role != wantRoles[i] {
			t.Errorf("content[%d] role = %q, want %q", i, c.Role, wantRoles[i])
		}
	}
}

func TestBuildPayload_SystemInstruction(t *testing.T) {
	p := buildPayload(genReq(false, 0), ModeNormal)
	if p.SystemInstruction == nil || p.SystemInstruction.Parts[0].Text != "sys" {
		t.Errorf("system instruction not attached: %+v", p.SystemInstruction)
	}

	noSys := buildPayload(&chat.Request{Turns: []chat.Turn{{Role: chat.RoleUser, Content: "q"}}}, ModeNormal)
	if noSys.SystemInstruction != nil {
		t.Error("system instruction should be omitted when no system turns exist")
	}
}

func TestBuildPayload_SafetyBlocksNothing(t *testing.T) {
	p := buildPayload(genReq(false, 0), ModeNormal)
	if len(p.SafetySettings) != 4 {
		t.Fatalf("expected 4 safety settings, got %d", len(p.SafetySettings))
	}
	for _, s := range p.SafetySettings {
		if s.Threshold != "BLOCK_NONE" {
			t.Errorf("category %s threshold = %q, want BLOCK_NONE", s.Category, s.Threshold)
		}
	}
}

func TestBuildPayload_JSONHintOmittedInSolverMode(t *testing.T) {
	if p := buildPayload(genReq(false, 0), ModeNormal); p.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Error("generator requests must carry the JSON response hint")
	}
	if p := buildPayload(genReq(true, 0), ModeNormal); p.GenerationConfig.ResponseMIMEType != "" {
		t.Error("solver requests must not carry a response format hint")
	}
}
