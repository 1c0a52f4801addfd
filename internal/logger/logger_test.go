package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"dev", "prod", ""} {
		l, err := NewLogger(env, "debug")
		if err != nil {
			t.Fatalf("env %q: unexpected error: %v", env, err)
		}
		if !l.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("env %q: expected debug level enabled", env)
		}
	}
}

func TestNewLoggerRejectsUnknown(t *testing.T) {
	if _, err := NewLogger("staging", ""); err == nil {
		t.Error("expected error for unknown environment")
	}
	if _, err := NewLogger("dev", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
