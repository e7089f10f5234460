package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHonoursLevel(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatConsole, ""} {
		l, err := New("warn", format)
		if err != nil {
			t.Fatalf("New(%q): %v", format, err)
		}
		if l.Core().Enabled(zapcore.InfoLevel) {
			t.Fatalf("%q: info should be disabled at warn level", format)
		}
		if !l.Core().Enabled(zapcore.ErrorLevel) {
			t.Fatalf("%q: error should be enabled at warn level", format)
		}
	}
}

func TestForSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := (&Logger{Logger: zap.New(core)}).Named("dispatch").ForSender("acme", "whatsapp", "5215550001")
	l.Info("reply failed")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["tenant_id"] != "acme" || fields["channel"] != "whatsapp" || fields["user_id"] != "5215550001" {
		t.Fatalf("fields = %v", fields)
	}
	if entries[0].LoggerName != "dispatch" {
		t.Fatalf("logger name = %q", entries[0].LoggerName)
	}
}
