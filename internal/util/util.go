// Package util holds small helpers shared across packages.
package util

import (
	"net/url"
	"strings"
)

// maskRules maps a minimum credential length to how many characters stay
// visible on each end. Entries are ordered longest-first.
var maskRules = []struct {
	minLen int
	keep   int
}{
	{9, 4},
	{5, 2},
	{3, 1},
}

// MaskToken obscures a credential for logging, showing only the first and
// last few characters. Credentials too short to mask are returned as-is.
func MaskToken(token string) string {
	for _, rule := range maskRules {
		if len(token) >= rule.minLen {
			return token[:rule.keep] + "..." + token[len(token)-rule.keep:]
		}
	}
	return token
}

// MaskSensitiveQuery masks credential-bearing query parameters, e.g.
// session tokens, within the raw query string.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	changed := false
	for i, part := range parts {
		if part == "" {
			continue
		}
		keyPart := part
		valuePart := ""
		if idx := strings.Index(part, "="); idx >= 0 {
			keyPart = part[:idx]
			valuePart = part[idx+1:]
		}
		decodedKey, err := url.QueryUnescape(keyPart)
		if err != nil {
			decodedKey = keyPart
		}
		if !shouldMaskQueryParam(decodedKey) {
			continue
		}
		decodedValue, err := url.QueryUnescape(valuePart)
		if err != nil {
			decodedValue = valuePart
		}
		masked := MaskToken(strings.TrimSpace(decodedValue))
		parts[i] = keyPart + "=" + url.QueryEscape(masked)
		changed = true
	}
	if !changed {
		return raw
	}
	return strings.Join(parts, "&")
}

func shouldMaskQueryParam(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	key = strings.TrimSuffix(key, "[]")
	if key == "key" || strings.Contains(key, "api-key") || strings.Contains(key, "apikey") || strings.Contains(key, "api_key") {
		return true
	}
	if strings.Contains(key, "token") || strings.Contains(key, "secret") || strings.Contains(key, "hmac") {
		return true
	}
	return false
}
