package logutil

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch {
	case normalized == "authorization":
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "password"):
		return true
	case strings.Contains(normalized, "apikey"):
		return true
	case strings.Contains(normalized, "cookie"):
		return true
	default:
		return false
	}
}

// FormatHeadersForLog returns stable, redacted header text for logs.
func FormatHeadersForLog(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value := strings.Join(headers.Values(k), ", ")
		if IsSensitiveLogField(k) {
			value = "[REDACTED]"
		}
		parts = append(parts, fmt.Sprintf("%s=%q", strings.ToLower(k), value))
	}
	return strings.Join(parts, "; ")
}

// FormatURLForLog renders a request URL with sensitive query parameters redacted.
func FormatURLForLog(u *url.URL) string {
	if u == nil {
		return ""
	}
	query := u.Query()
	if len(query) == 0 {
		return u.String()
	}
	for k := range query {
		if IsSensitiveLogField(k) {
			query.Set(k, "[REDACTED]")
		}
	}
	clone := *u
	clone.RawQuery = query.Encode()
	return clone.String()
}

// TruncateForLog returns a single-line truncated preview for unstructured values.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || len(normalized) <= maxChars {
		return normalized
	}
	return normalized[:maxChars] + "... [truncated]"
}
