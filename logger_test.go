package gandewa

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologLoggerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf))

	logger.Info("call completed", "path", "user.get", "attempts", 2)

	line := buf.String()
	if !strings.Contains(line, `"message":"call completed"`) {
		t.Errorf("Expected message in output, got %q", line)
	}
	if !strings.Contains(line, `"path":"user.get"`) {
		t.Errorf("Expected path field in output, got %q", line)
	}
	if !strings.Contains(line, `"attempts":2`) {
		t.Errorf("Expected attempts field in output, got %q", line)
	}
}

func TestZerologLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf))

	logger.Debug("d")
	logger.Warn("w")
	logger.Error("e")

	out := buf.String()
	for _, level := range []string{`"level":"debug"`, `"level":"warn"`, `"level":"error"`} {
		if !strings.Contains(out, level) {
			t.Errorf("Expected %s in output, got %q", level, out)
		}
	}
}

func TestDefaultDebugConfig(t *testing.T) {
	cfg := DefaultDebugConfig()

	if cfg.Enabled {
		t.Error("Expected debug disabled by default")
	}
	if !cfg.LogCalls || !cfg.LogSubscriptions || !cfg.LogCircuit {
		t.Error("Expected per-concern flags enabled by default")
	}
	if cfg.RequestIDGen == nil {
		t.Fatal("Expected a request id generator")
	}

	id := cfg.RequestIDGen()
	if len(id) != 8 {
		t.Errorf("Expected 8-character request id, got %q", id)
	}
	if id == cfg.RequestIDGen() {
		t.Error("Expected unique request ids")
	}
}
