package logging

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetBeforeInitializeIsNoop(t *testing.T) {
	SetLogger(nil)
	l := Get(CategoryWorkflow)
	if l == nil {
		t.Fatal("expected non-nil logger before Initialize")
	}
	// Should not panic.
	l.Infof("noop %d", 1)
}

func TestCategoriesAreNamed(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	Workflow("stage %s started", "draft")
	Handoff("request %s validated", "h-1")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].LoggerName != string(CategoryWorkflow) {
		t.Errorf("expected workflow logger name, got %q", entries[0].LoggerName)
	}
	if entries[1].LoggerName != string(CategoryHandoff) {
		t.Errorf("expected handoff logger name, got %q", entries[1].LoggerName)
	}
}

func TestGetReturnsSameLogger(t *testing.T) {
	SetLogger(zap.NewNop())
	defer SetLogger(nil)

	a := Get(CategoryStore)
	b := Get(CategoryStore)
	if a != b {
		t.Error("expected cached logger instance per category")
	}
}

func TestTimerMeasuresElapsed(t *testing.T) {
	SetLogger(zap.NewNop())
	defer SetLogger(nil)

	timer := StartTimer(CategoryQuality, "evaluate")
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.Stop()
	if elapsed < 5*time.Millisecond {
		t.Errorf("expected elapsed >= 5ms, got %v", elapsed)
	}
}
