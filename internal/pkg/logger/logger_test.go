package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(DEBUG)
	SetRedactPII(true)
	t.Cleanup(func() {
		SetLevel(INFO)
	})
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]string {
	t.Helper()
	var m map[string]string
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	return m
}

func TestScoped_StampsScopeAndRedacts(t *testing.T) {
	buf := capture(t)

	Scope("source_verifier").Info("checked", "email", "john.doe@example.com", "note", "seen jane@example.org on page")

	m := decodeLine(t, buf)
	if m["scope"] != "source_verifier" {
		t.Errorf("scope = %q", m["scope"])
	}
	if m["email"] != "jo***@example.com" {
		t.Errorf("email = %q", m["email"])
	}
	if strings.Contains(m["note"], "jane@") {
		t.Errorf("embedded email not redacted: %q", m["note"])
	}
	if m["level"] != "INFO" || m["msg"] != "checked" {
		t.Errorf("unexpected entry %+v", m)
	}
}

func TestHashFieldsPassThrough(t *testing.T) {
	buf := capture(t)

	Warn("lookup failed", "email_hash", RedactHash("8c87b489ce35cf2e2f39f80e282cb2e804932a56a213983eeeb428407d43b52d"))

	m := decodeLine(t, buf)
	if m["email_hash"] != "8c87b489…" {
		t.Errorf("email_hash = %q", m["email_hash"])
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)
	Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected INFO to be filtered, got %q", buf.String())
	}
	Warn("kept")
	if !strings.Contains(buf.String(), `"kept"`) {
		t.Errorf("expected WARN entry, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"debug": DEBUG, "INFO": INFO, "warn": WARN, "warning": WARN, "error": ERROR, "bogus": INFO}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRedactEmail(t *testing.T) {
	tests := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"not-an-email":         "***@***",
	}
	for in, want := range tests {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactHash(t *testing.T) {
	if got := RedactHash("0123456789abcdef"); got != "01234567…" {
		t.Errorf("RedactHash = %q", got)
	}
	if got := RedactHash("abc"); got != "abc" {
		t.Errorf("RedactHash short = %q", got)
	}
}
