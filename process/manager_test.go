package process

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh -c scenario not applicable on windows")
	}
}

func TestRunCompletesWithinBudget(t *testing.T) {
	skipOnWindows(t)
	m := NewManager(t.TempDir())

	result, err := m.Run(context.Background(), "sleep 0.05 && echo done", 500*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Completed {
		t.Fatal("expected command to complete within budget")
	}
	if !strings.Contains(result.Output, "done") {
		t.Fatalf("expected output to contain 'done', got %q", result.Output)
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %v", result.ExitCode)
	}
}

func TestRunBackgroundsOnTimeout(t *testing.T) {
	skipOnWindows(t)
	m := NewManager(t.TempDir())

	result, err := m.Run(context.Background(), "sleep 0.2 && echo done", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Completed {
		t.Fatal("expected command to be backgrounded")
	}
	if result.PID == 0 {
		t.Fatal("expected a pid for the backgrounded process")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok := m.Status(result.PID)
		if !ok {
			t.Fatal("expected process to remain tracked")
		}
		if !snap.Running {
			if snap.ExitCode == nil || *snap.ExitCode != 0 {
				t.Fatalf("expected exit code 0, got %v", snap.ExitCode)
			}
			if !strings.Contains(snap.Output, "done") {
				t.Fatalf("expected backgrounded output to contain 'done', got %q", snap.Output)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("backgrounded process never observed to exit")
}

func TestRunObservesExitAfterCancellation(t *testing.T) {
	skipOnWindows(t)
	m := NewManager(t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	result, err := m.Run(ctx, "sleep 0.2 && echo done", 2*time.Second)
	if err == nil {
		t.Fatal("expected ctx cancellation error")
	}
	if result.Completed {
		t.Fatal("expected command to still be backgrounded at cancellation")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok := m.Status(result.PID)
		if !ok {
			t.Fatal("expected process to remain tracked")
		}
		if !snap.Running {
			if snap.ExitCode == nil || *snap.ExitCode != 0 {
				t.Fatalf("expected exit code 0, got %v", snap.ExitCode)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("cancelled process's exit was never latched")
}

func TestKillReportsTrackedOrNot(t *testing.T) {
	skipOnWindows(t)
	m := NewManager(t.TempDir())

	result, err := m.Run(context.Background(), "sleep 1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Kill(result.PID) {
		t.Fatal("expected kill to find the tracked process")
	}
	if m.Kill(999999) {
		t.Fatal("expected kill of an untracked pid to return false")
	}
}

func TestTailRespectsBound(t *testing.T) {
	p := &Process{PID: 1, Command: "x", Started: time.Now(), state: Exited}
	p.write([]byte(strings.Repeat("a", 100)))

	m := &Manager{processes: map[int]*Process{1: p}}
	out, ok := m.Tail(1, 10)
	if !ok {
		t.Fatal("expected tracked process")
	}
	if !strings.HasPrefix(out, "...") {
		t.Fatalf("expected truncation marker, got %q", out)
	}
	if len(out) != len("...")+10 {
		t.Fatalf("expected tail bounded to n+len(\"...\"), got len=%d: %q", len(out), out)
	}
}

func TestOutputBufferBoundedAtMaxOutput(t *testing.T) {
	p := &Process{PID: 1, Command: "x", Started: time.Now(), state: Running}
	chunk := make([]byte, 4096)
	for i := range chunk {
		chunk[i] = 'x'
	}
	for i := 0; i < (MaxOutput/len(chunk))+10; i++ {
		p.write(chunk)
	}
	snap := p.snapshot()
	if len(snap.Output) > MaxOutput {
		t.Fatalf("expected output bounded at %d bytes, got %d", MaxOutput, len(snap.Output))
	}
	if !snap.Dropped {
		t.Fatal("expected dropped flag to be set once buffer fills")
	}
}
