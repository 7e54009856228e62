package transport

import (
	"strings"
)

const (
	DefaultUserAgent = "pokedex-seeder/1.0 (+https://github.com/samvad-hq/pokedex-seeder)"
	acceptJSON       = "application/json"
)

// Headers returns the request headers sent on every upstream call.
func Headers() map[string]string {
	return map[string]string{
		"User-Agent": DefaultUserAgent,
		"Accept":     acceptJSON,
	}
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
