package session

import (
	"errors"
	"testing"
)

func TestStateMachineAllowedTransitions(t *testing.T) {
	sm := NewStateMachine()

	allowed := []struct{ from, to Status }{
		{StatusConfigured, StatusRunning},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusAborted},
	}
	for _, tr := range allowed {
		if !sm.CanTransition(tr.from, tr.to) {
			t.Fatalf("expected %s -> %s to be allowed", tr.from, tr.to)
		}
		if err := sm.Transition(tr.from, tr.to, "s-1"); err != nil {
			t.Fatalf("Transition(%s, %s) error: %v", tr.from, tr.to, err)
		}
	}
}

func TestStateMachineRejectedTransitions(t *testing.T) {
	sm := NewStateMachine()

	rejected := []struct{ from, to Status }{
		{StatusConfigured, StatusCompleted}, // 不能跳过 running
		{StatusConfigured, StatusAborted},
		{StatusCompleted, StatusRunning}, // 终态不可逆
		{StatusAborted, StatusRunning},
		{StatusCompleted, StatusAborted},
		{StatusRunning, StatusRunning}, // 自环
	}
	for _, tr := range rejected {
		if sm.CanTransition(tr.from, tr.to) {
			t.Fatalf("expected %s -> %s to be rejected", tr.from, tr.to)
		}
		err := sm.Transition(tr.from, tr.to, "s-1")
		var invalid *InvalidStateTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidStateTransitionError for %s -> %s, got %v", tr.from, tr.to, err)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(StatusConfigured) || IsTerminal(StatusRunning) {
		t.Fatal("configured/running should not be terminal")
	}
	if !IsTerminal(StatusCompleted) || !IsTerminal(StatusAborted) {
		t.Fatal("completed/aborted should be terminal")
	}
}
