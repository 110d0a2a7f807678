package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   zerolog.Level
		wantOK bool
	}{
		{in: "", want: zerolog.InfoLevel, wantOK: false},
		{in: "debug", want: zerolog.DebugLevel, wantOK: true},
		{in: " WARN ", want: zerolog.WarnLevel, wantOK: true},
		{in: "off", want: zerolog.Disabled, wantOK: true},
		{in: "loud", want: zerolog.InfoLevel, wantOK: false},
	}
	for _, tt := range tests {
		got, ok := parseLevel(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogJSON, "maybe")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel {
		t.Errorf("Level = %v, want error", cfg.Level)
	}
	if cfg.Timestamp {
		t.Error("Timestamp should be disabled")
	}
	if !cfg.NoColor {
		t.Error("NoColor should be enabled")
	}
	if cfg.JSON {
		t.Error("unparseable JSON flag should leave the default")
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: zerolog.InfoLevel, JSON: true, Out: &buf})
	l.Debug().Msg("hidden")
	l.Info().Str("component", "worker").Msg("ready")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %s", out)
	}
	if !strings.Contains(out, `"component":"worker"`) || !strings.Contains(out, `"message":"ready"`) {
		t.Errorf("unexpected output: %s", out)
	}
}
