// Package outputfmt scrubs error text before it reaches logs or chats.
package outputfmt

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "[redacted]"

var (
	absoluteURLInTextRE = regexp.MustCompile(`https?://[^\s"'<>]+`)
	// Bot API paths carry the token: /bot<id>:<secret>/method.
	botTokenPathRE = regexp.MustCompile(`/bot[0-9]+:[A-Za-z0-9_-]+`)
)

// FormatError sanitizes err and blanks out every given secret.
func FormatError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}
	return Redact(SanitizeErrorText(err.Error()), secrets...)
}

// Redact replaces each non-empty secret in text.
func Redact(text string, secrets ...string) string {
	for _, s := range secrets {
		if s = strings.TrimSpace(s); s != "" {
			text = strings.ReplaceAll(text, s, redacted)
		}
	}
	return text
}

// SanitizeErrorText drops URL hosts, bot tokens in paths and sensitive query
// values while keeping the rest of the path.
func SanitizeErrorText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return absoluteURLInTextRE.ReplaceAllStringFunc(raw, sanitizeURLInText)
}

func sanitizeURLInText(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	path = botTokenPathRE.ReplaceAllString(path, "/bot"+url.PathEscape(redacted))
	if q := redactSensitiveQuery(u.Query()); q != "" {
		path += "?" + q
	}
	if frag := strings.TrimSpace(u.EscapedFragment()); frag != "" {
		path += "#" + frag
	}
	return path
}

func redactSensitiveQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	for k := range q {
		if isSensitiveQueryKey(k) {
			q.Set(k, redacted)
		}
	}
	return q.Encode()
}

func isSensitiveQueryKey(key string) bool {
	n := strings.ToLower(strings.TrimSpace(key))
	n = strings.ReplaceAll(strings.ReplaceAll(n, "-", ""), "_", "")
	if n == "" {
		return false
	}
	if n == "key" {
		return true
	}
	for _, part := range []string{"apikey", "authorization", "token", "secret", "password", "cookie"} {
		if strings.Contains(n, part) {
			return true
		}
	}
	return false
}
