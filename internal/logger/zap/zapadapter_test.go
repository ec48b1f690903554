package zap

import (
	"testing"

	"KoordeDHT/internal/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapAdapterLogsWithFieldsAndName(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapAdapter(zap.New(core))

	l.Named("ring").With(logger.F("self", "n1:1")).Info("stabilized", logger.F("successor", "n2:1"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.LoggerName != "ring" {
		t.Errorf("logger name = %q, want %q", entry.LoggerName, "ring")
	}
	if entry.Message != "stabilized" {
		t.Errorf("message = %q, want %q", entry.Message, "stabilized")
	}

	fields := entry.ContextMap()
	if fields["self"] != "n1:1" {
		t.Errorf("bound field self = %v, want %q", fields["self"], "n1:1")
	}
	if fields["successor"] != "n2:1" {
		t.Errorf("call field successor = %v, want %q", fields["successor"], "n2:1")
	}
}

func TestZapAdapterLevelGating(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l := NewZapAdapter(zap.New(core))

	l.Debug("should be dropped")
	l.Info("should be dropped")
	l.Warn("should appear")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Message != "should appear" {
		t.Errorf("message = %q, want %q", entries[0].Message, "should appear")
	}
}
