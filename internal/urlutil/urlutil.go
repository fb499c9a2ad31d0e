package urlutil

import (
	"net/url"
	"strings"
)

// BuildAbsolute builds an absolute URL from a base origin and a path.
// Absolute inputs are returned unchanged.
func BuildAbsolute(base, path string) string {
	base = NormalizeBaseURL(base)
	path = strings.TrimSpace(path)
	if path == "" {
		return base
	}
	if IsAbsolute(path) {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}

// IsAbsolute reports whether s carries an http(s) scheme.
func IsAbsolute(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// NormalizeBaseURL trims whitespace and trailing slashes.
func NormalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/")
}

// ValidateBaseURL reports whether base is an absolute http(s) URL with a host.
func ValidateBaseURL(base string) bool {
	u, err := url.Parse(NormalizeBaseURL(base))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
