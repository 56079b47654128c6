package outputfmt

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeErrorTextRemovesBotToken(t *testing.T) {
	in := `Post "https://api.telegram.org/bot123456:AAE-secret_part/getUpdates": dial tcp: i/o timeout`

	out := SanitizeErrorText(in)
	if strings.Contains(out, "api.telegram.org") {
		t.Fatalf("host should be removed, got %q", out)
	}
	if strings.Contains(out, "AAE-secret_part") || strings.Contains(out, "123456") {
		t.Fatalf("bot token should be redacted, got %q", out)
	}
	if !strings.Contains(out, `Post "/bot%5Bredacted%5D/getUpdates": dial tcp: i/o timeout`) {
		t.Fatalf("expected method path to be kept, got %q", out)
	}
}

func TestSanitizeErrorTextQueries(t *testing.T) {
	in := `fetch failed: https://a.example.com/ping?token=abc then https://b.example.com/health?ok=1`
	out := SanitizeErrorText(in)
	if strings.Contains(out, "a.example.com") || strings.Contains(out, "b.example.com") {
		t.Fatalf("hosts should be removed, got %q", out)
	}
	if !strings.Contains(out, "/ping?token=%5Bredacted%5D") {
		t.Fatalf("first url should keep path/query, got %q", out)
	}
	if !strings.Contains(out, "/health?ok=1") {
		t.Fatalf("second url should keep path/query, got %q", out)
	}
}

func TestFormatError(t *testing.T) {
	if got := FormatError(nil); got != "" {
		t.Fatalf("nil error should format as empty string, got %q", got)
	}
	err := errors.New(`telegram getMe: token s3cr3t rejected`)
	got := FormatError(err, "s3cr3t", "  ")
	if got != "telegram getMe: token [redacted] rejected" {
		t.Fatalf("FormatError() = %q", got)
	}
}
