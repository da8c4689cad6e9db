package log_test

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/dshills/agenthook/internal/log"
)

func capture(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	fn()
	return buf.String()
}

func TestLevelGating(t *testing.T) {
	prev := log.GetLevel()
	defer log.SetLevel(prev)

	log.SetLevel(log.LevelWarn)
	out := capture(t, func() {
		log.Debug("hidden %d", 1)
		log.Info("hidden %d", 2)
		log.Warn("shown %d", 3)
		log.Error("shown %d", 4)
	})

	if strings.Contains(out, "hidden") {
		t.Errorf("suppressed levels leaked: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 3") {
		t.Errorf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] shown 4") {
		t.Errorf("missing error line: %q", out)
	}
}

func TestDebugLevel(t *testing.T) {
	prev := log.GetLevel()
	defer log.SetLevel(prev)

	log.SetLevel(log.LevelDebug)
	out := capture(t, func() {
		log.Debug("visible")
	})
	if !strings.Contains(out, "[DEBUG] visible") {
		t.Errorf("missing debug line: %q", out)
	}
}
