// Package logutil keeps secrets out of run logs and reports.
package logutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const redacted = "[REDACTED]"

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")
	normalized = strings.ReplaceAll(normalized, " ", "")

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
	case strings.Contains(normalized, "jwt"):
		return true
	default:
		return false
	}
}

// RedactValue returns value, or a redaction marker when any of the hints
// (field names, selectors, labels) look sensitive.
func RedactValue(value string, hints ...string) string {
	for _, h := range hints {
		if IsSensitiveLogField(h) {
			return redacted
		}
	}
	return value
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
		values := headers.Values(k)
		if len(values) == 0 {
			parts = append(parts, fmt.Sprintf("%s=<empty>", strings.ToLower(k)))
			continue
		}
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = RedactValue(v, k)
		}
		parts = append(parts, fmt.Sprintf("%s=%q", strings.ToLower(k), strings.Join(out, ", ")))
	}
	return strings.Join(parts, "; ")
}

// RedactURL redacts sensitive query parameters and userinfo passwords.
// Unparseable input is returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	changed := false
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), redacted)
		changed = true
	}
	q := u.Query()
	for k := range q {
		if IsSensitiveLogField(k) {
			q[k] = []string{redacted}
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// RedactJSON redacts sensitive fields from JSON payloads; non-JSON bodies are returned as-is.
func RedactJSON(contentType string, body []byte) string {
	text := string(body)
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return text
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return text
	}
	redactTree(payload)
	safeJSON, err := json.Marshal(payload)
	if err != nil {
		return text
	}
	return string(safeJSON)
}

func redactTree(v any) {
	switch typed := v.(type) {
	case map[string]any:
		for k, child := range typed {
			if IsSensitiveLogField(k) {
				typed[k] = redacted
				continue
			}
			redactTree(child)
		}
	case []any:
		for _, child := range typed {
			redactTree(child)
		}
	}
}

// FormatBodyForLog truncates and redacts body text for safe logging.
func FormatBodyForLog(contentType string, body []byte, maxBytes int) string {
	if len(body) == 0 {
		return ""
	}
	// Truncated JSON no longer parses, so redact before cutting.
	text := RedactJSON(contentType, body)
	if maxBytes > 0 && len(text) > maxBytes {
		return text[:maxBytes] + " [truncated]"
	}
	return text
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
