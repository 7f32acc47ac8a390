package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerFunctions(t *testing.T) {
	Init("invalid") // should default to info
	if log == nil {
		t.Fatal("log not initialized")
	}
	if log.GetLevel().String() != "info" {
		t.Fatalf("expected info level, got %s", log.GetLevel())
	}
	// Avoid os.Exit on Fatal
	log.ExitFunc = func(int) {}

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
	Debugf("%s", "debugf")
	Infof("%s", "infof")
	Warnf("%s", "warnf")
	Errorf("%s", "errorf")
	WithFields(map[string]interface{}{"discipline": "SB"}).Info("fields")
	Fatal("fatal")
	Fatalf("%s", "fatalf")
}

func TestSetOutput(t *testing.T) {
	Init("warn")
	t.Cleanup(func() { Init("info") })
	var buf bytes.Buffer
	SetOutput(&buf)
	Info("hidden")
	WithFields(map[string]interface{}{"discipline": "SB"}).Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") || !strings.Contains(out, "discipline=SB") {
		t.Fatalf("unexpected output %q", out)
	}
}
