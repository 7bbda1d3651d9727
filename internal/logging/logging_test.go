package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewWithLevel(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logDebug  bool
		wantDebug bool
	}{
		{name: "debug level keeps debug", level: "debug", wantDebug: true},
		{name: "info level drops debug", level: "info", wantDebug: false},
		{name: "unknown level falls back to info", level: "chatty", wantDebug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewWithLevel(&buf, tt.level)
			l.Debug("hidden?")

			got := strings.Contains(buf.String(), "hidden?")
			if got != tt.wantDebug {
				t.Errorf("debug emitted = %v, want %v (output %q)", got, tt.wantDebug, buf.String())
			}
		})
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := With(New(&buf), "run", "abc123")
	l.Info("stage complete")

	if !strings.Contains(buf.String(), "run=abc123") {
		t.Errorf("output = %q, want run=abc123 field", buf.String())
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "***"},
		{in: "short", want: "***"},
		{in: "BQDx1234567890", want: "BQDx12..."},
	}

	for _, tt := range tests {
		if got := Redact(tt.in); got != tt.want {
			t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	l := New(nil)
	if OrDiscard(l) != l {
		t.Error("OrDiscard should return the given logger")
	}
}
