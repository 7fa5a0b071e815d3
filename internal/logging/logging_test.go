package logging

import (
	"testing"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{Level(42), "unknown(42)"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestSetLevel(t *testing.T) {
	original := GetLevel()
	defer SetLevel(original)

	SetLevel(LevelError)
	if got := GetLevel(); got != LevelError {
		t.Errorf("GetLevel() = %v after SetLevel(LevelError)", got)
	}

	SetLevel(LevelDebug)
	if !IsDebugEnabled() {
		t.Error("IsDebugEnabled() = false after SetLevel(LevelDebug)")
	}

	SetLevel(LevelInfo)
	if IsDebugEnabled() {
		t.Error("IsDebugEnabled() = true at info level")
	}
}

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		debug    string
		logLevel string
		want     Level
	}{
		{name: "Default is info", want: LevelInfo},
		{name: "DEBUG=true wins", debug: "true", logLevel: "error", want: LevelDebug},
		{name: "DEBUG=1 enables debug", debug: "1", want: LevelDebug},
		{name: "LOG_LEVEL=debug", logLevel: "debug", want: LevelDebug},
		{name: "LOG_LEVEL=warn", logLevel: "warn", want: LevelWarn},
		{name: "LOG_LEVEL=warning", logLevel: "warning", want: LevelWarn},
		{name: "LOG_LEVEL=error", logLevel: "error", want: LevelError},
		{name: "Unknown LOG_LEVEL falls back to info", logLevel: "verbose", want: LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DEBUG", tt.debug)
			t.Setenv("LOG_LEVEL", tt.logLevel)

			if got := levelFromEnv(); got != tt.want {
				t.Errorf("levelFromEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}
