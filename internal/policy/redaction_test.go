package policy

import (
	"strings"
	"testing"
)

func TestRedactForLog(t *testing.T) {
	input := "Incorrect API key provided: sk-proj-abc123***xyz. Header was Bearer sk-live_9999. Mail sam@example.com"
	out, changed := RedactForLog(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, leaked := range []string{"sk-proj-abc123", "sk-live_9999", "sam@example.com"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("output still contains %q: %q", leaked, out)
		}
	}
	for _, marker := range []string{"[REDACTED_KEY]", "Bearer [REDACTED]", "[REDACTED_EMAIL]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactForLogNoop(t *testing.T) {
	out, changed := RedactForLog("hello there")
	if changed || out != "hello there" {
		t.Fatalf("RedactForLog() = %q, %v", out, changed)
	}
}

func TestClip(t *testing.T) {
	if got := Clip("héllo world", 5); got != "héllo…" {
		t.Fatalf("Clip() = %q", got)
	}
	if got := Clip("short", 10); got != "short" {
		t.Fatalf("Clip() = %q", got)
	}
}
