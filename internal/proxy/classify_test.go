package proxy

import "testing"

func TestIsTransientStatuses(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{408, true},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{400, false},
		{401, false},
		{402, false},
		{403, false},
		{404, false},
		{422, false},
		{200, false},
	}

	for _, tt := range tests {
		if got := isTransient(tt.status, ""); got != tt.want {
			t.Errorf("isTransient(%d, \"\") = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsTransientBodyMarkers(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"rate limit", "Rate limit exceeded for project", true},
		{"quota", "You have exhausted your QUOTA.", true},
		{"too many", "too many requests, slow down", true},
		{"rpm", "RPM cap reached", true},
		{"tpm", "tpm threshold exceeded", true},
		{"timeout", "gateway timeout while contacting model", true},
		{"timed out", "the request timed out", true},
		{"bad gateway", "Bad Gateway", true},
		{"temporarily unavailable", "service temporarily unavailable", true},
		{"overloaded", "The model is overloaded. Please try later.", true},
		{"plain auth error", "API key not valid. Please pass a valid key.", false},
		{"empty body", "", false},
		{"unrelated text", "candidate was blocked due to safety", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A non-transient status forces the marker scan to decide.
			if got := isTransient(400, tt.body); got != tt.want {
				t.Errorf("isTransient(400, %q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}

// A body marker must not rescue a status that is already terminal when the
// status itself is authoritative; markers only widen the transient set.
func TestIsTransientMarkerWidensStatus(t *testing.T) {
	if !isTransient(403, "quota exceeded for this billing account") {
		t.Error("quota marker on 403 should be transient")
	}
	if isTransient(403, "permission denied") {
		t.Error("plain 403 should be terminal")
	}
}
