package service

import (
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes a LinkedIn URL: trims whitespace, forces a
// scheme, drops query parameters and fragments, and strips trailing
// slashes. Non-LinkedIn hosts normalize to "".
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	candidate := trimmed
	if !strings.HasPrefix(candidate, "http") {
		candidate = "https://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Hostname() == "" {
		// Fallback: strip everything after ? or # plus trailing slashes;
		// the path filters below still gate what gets through.
		base := strings.SplitN(trimmed, "#", 2)[0]
		base = strings.SplitN(base, "?", 2)[0]
		return strings.TrimRight(base, "/")
	}
	if !strings.Contains(u.Hostname(), "linkedin.com") {
		return ""
	}

	path := strings.TrimRight(u.Path, "/")
	return u.Scheme + "://" + u.Hostname() + path
}

// NormalizeProfileURLs normalizes and filters to profile URLs.
func NormalizeProfileURLs(raw []string) []string {
	var out []string
	for _, r := range raw {
		u := NormalizeURL(r)
		if u != "" && strings.Contains(u, "linkedin.com/in/") {
			out = append(out, u)
		}
	}
	return out
}

// NormalizePostURLs normalizes and filters to post URLs, capped at limit.
func NormalizePostURLs(raw []string, limit int) []string {
	var out []string
	for _, r := range raw {
		u := NormalizeURL(r)
		if u != "" && strings.Contains(u, "linkedin.com/posts/") {
			out = append(out, u)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
