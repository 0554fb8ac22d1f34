package proxy

import "strings"

// transientStatuses are upstream statuses worth a single retry on the other
// model. Everything else is terminal on first occurrence.
var transientStatuses = map[int]struct{}{
	408: {},
	429: {},
	500: {},
	502: {},
	503: {},
	504: {},
}

// transientMarkers are lower-case substrings of upstream error text that mark
// a provider-side hiccup likely to clear on retry.
var transientMarkers = []string{
	"rate limit",
	"quota",
	"too many",
	"rpm",
	"tpm",
	"timeout",
	"timed out",
	"bad gateway",
	"temporarily unavailable",
	"overloaded",
}

// isTransient reports whether a failed attempt should trigger the single lite
// retry. Auth errors, malformed requests, safety blocks, and unknown routes
// are terminal: retrying them wastes a full round trip and cannot succeed.
func isTransient(status int, rawBody string) bool {
	if _, ok := transientStatuses[status]; ok {
		return true
	}
	body := strings.ToLower(rawBody)
	for _, m := range transientMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}
