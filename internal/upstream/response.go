package upstream

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrEmptyContent marks an upstream "success" that carried no usable text.
// The caller must treat it as a failure, not pass it through.
var ErrEmptyContent = errors.New("upstream returned empty content")

// rescuePaths is the priority list of gjson paths rescued from a solver
// response that came back as JSON despite the no-JSON instruction. Includes
// the generator's own document shape, where the answer hides under a
// questions array.
var rescuePaths = []string{
	"solution_html",
	"sample",
	"answer_html",
	"questions.0.solution_html",
	"questions.0.sample",
}

// Normalize unwraps a successful attempt body into final plain text.
//
// The candidate's part texts are concatenated in order; solver-mode responses
// are additionally cleaned of code fences, a leading "Solution:" label, and
// stray JSON wrapping. Empty output (before or after cleanup) yields
// ErrEmptyContent.
func Normalize(rawBody string, solver bool) (string, error) {
	text, err := extractText(rawBody)
	if err != nil {
		return "", err
	}
	if solver {
		text = cleanSolverText(text)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

// extractText parses the structured response and joins all text fragments of
// the first candidate, in order.
func extractText(rawBody string) (string, error) {
	var resp generateResponse
	if err := json.Unmarshal([]byte(rawBody), &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyContent
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

// cleanSolverText post-processes a solver answer: some models ignore the
// "do not return JSON" instruction, so after stripping fences and the
// "Solution:" label the text may still be a JSON document hiding the HTML
// snippet the caller expects.
func cleanSolverText(text string) string {
	text = stripCodeFences(text)
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "Solution:"))

	if rescued, ok := rescueFromJSON(text); ok {
		return rescued
	}
	return text
}

// stripCodeFences removes leading/trailing ``` markers, with or without a
// language tag on the opening fence.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop the language tag: everything up to the first newline on the
	// opening fence line.
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	} else {
		trimmed = strings.TrimSpace(trimmed)
	}

	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// rescueFromJSON attempts to pull a human-readable field out of text that
// still looks like a JSON object (or an array of them). Returns false when
// the text is not JSON or none of the known fields exist.
func rescueFromJSON(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	isObject := strings.HasPrefix(trimmed, "{")
	isArray := strings.HasPrefix(trimmed, "[")
	if !isObject && !isArray {
		return "", false
	}
	if !gjson.Valid(trimmed) {
		return "", false
	}

	for _, p := range rescuePaths {
		path := p
		if isArray {
			path = "0." + p
		}
		if v := gjson.Get(trimmed, path); v.Exists() && v.String() != "" {
			return v.String(), true
		}
	}
	return "", false
}
