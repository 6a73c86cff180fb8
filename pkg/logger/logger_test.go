package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("New accepted level \"loud\"")
	}
}

func TestNewInstallsLogger(t *testing.T) {
	prev := InfoLogger
	defer func() { InfoLogger = prev }()

	l, err := New(Config{Level: "debug", Encoding: "console", Service: "algo_bot"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if InfoLogger != l {
		t.Error("New did not install the package logger")
	}
	if !l.Core().Enabled(zap.DebugLevel) {
		t.Error("debug level is not enabled")
	}
	SetServiceName("default")
}

func TestHelpersDoNotPanicWithoutInit(t *testing.T) {
	prev := InfoLogger
	defer func() { InfoLogger = prev }()
	InfoLogger = zap.NewNop()

	Info("hello %s", "world")
	Warn("warn %d", 1)
	Error("error %v", nil)
}
