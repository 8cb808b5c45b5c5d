package internal

import "testing"

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"ERROR":   LogLevelError,
		"warn":    LogLevelWarn,
		" debug ": LogLevelDebug,
		"TRACE":   LogLevelTrace,
		"":        LogLevelInfo,
		"verbose": LogLevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger().With("class", "T")
	l.Error("discarded %d", 1)
	l.Info("discarded")
	if l.GetLevel() != LogLevelError {
		t.Errorf("Expected error level, got %d", l.GetLevel())
	}
}
