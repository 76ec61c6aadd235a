package procset

import (
	"errors"
	"os/exec"
	stdruntime "runtime"
	"syscall"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if stdruntime.GOOS == "windows" {
		t.Skip("process set tests skipped on windows")
	}
}

func shCmd(script string) *exec.Cmd {
	return exec.Command("/bin/sh", "-c", script)
}

func waitAny(t *testing.T, s *ProcessSet[string], h *SignalHandler) WaitResult[string] {
	t.Helper()
	done := make(chan WaitResult[string], 1)
	go func() { done <- s.WaitAny(h) }()
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatalf("WaitAny did not return within 5s")
		return WaitResult[string]{}
	}
}

func TestWaitAnyIdleSet(t *testing.T) {
	s := New[string]()
	res := s.WaitAny(nil)
	if res.Kind != KindNoProcesses {
		t.Fatalf("expected KindNoProcesses, got %q", res.Kind)
	}
}

func TestUnlimitedStartsImmediately(t *testing.T) {
	skipOnWindows(t)

	s := New[string]()
	for _, key := range []string{"a", "b", "c"} {
		if err := s.Add(key, exec.Command("sleep", "5")); err != nil {
			t.Fatalf("add %s: %v", key, err)
		}
	}
	if got := s.NumRunning(); got != 3 {
		t.Fatalf("expected 3 running, got %d", got)
	}
	if got := s.NumQueued(); got != 0 {
		t.Fatalf("expected empty queue, got %d entries", got)
	}

	if err := s.KillAll(); err != nil {
		t.Fatalf("kill all: %v", err)
	}
	if got := s.NumRunning(); got != 0 {
		t.Fatalf("expected 0 running after KillAll, got %d", got)
	}
}

func TestCeilingQueuesExcess(t *testing.T) {
	skipOnWindows(t)

	const limit = 2
	keys := []string{"t1", "t2", "t3", "t4", "t5"}

	s := WithConcurrencyLimit[string](limit)
	for _, key := range keys {
		if err := s.Add(key, shCmd("exit 0")); err != nil {
			t.Fatalf("add %s: %v", key, err)
		}
		if got := s.NumRunning(); got > limit {
			t.Fatalf("running table grew to %d, ceiling is %d", got, limit)
		}
	}
	if got := s.NumQueued(); got != len(keys)-limit {
		t.Fatalf("expected %d queued, got %d", len(keys)-limit, got)
	}

	seen := map[string]int{}
	for {
		res := waitAny(t, s, nil)
		if res.Kind == KindNoProcesses {
			break
		}
		if res.Kind != KindSubprocess {
			t.Fatalf("unexpected result kind %q", res.Kind)
		}
		seen[res.Key]++
		if got := s.NumRunning(); got > limit {
			t.Fatalf("running table grew to %d, ceiling is %d", got, limit)
		}
	}
	for _, key := range keys {
		if seen[key] != 1 {
			t.Fatalf("key %s reported %d times, want exactly once", key, seen[key])
		}
	}
}

func TestSequentialPromotionOrder(t *testing.T) {
	skipOnWindows(t)

	s := WithConcurrencyLimit[string](1)
	if err := s.Add("a", shCmd("exit 0")); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := s.Add("b", shCmd("exit 0")); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if got := s.NumQueued(); got != 1 {
		t.Fatalf("expected b queued, got %d queued entries", got)
	}

	first := waitAny(t, s, nil)
	if first.Kind != KindSubprocess || first.Key != "a" {
		t.Fatalf("first result = %q/%q, want subprocess a", first.Kind, first.Key)
	}
	if !first.Outcome.Success() {
		t.Fatalf("a finished with %s, want exit 0", first.Outcome)
	}
	if got := s.NumRunning(); got != 1 {
		t.Fatalf("expected b promoted after a exited, running=%d", got)
	}

	second := waitAny(t, s, nil)
	if second.Kind != KindSubprocess || second.Key != "b" {
		t.Fatalf("second result = %q/%q, want subprocess b", second.Kind, second.Key)
	}

	third := s.WaitAny(nil)
	if third.Kind != KindNoProcesses {
		t.Fatalf("third result = %q, want KindNoProcesses", third.Kind)
	}
}

func TestDuplicateKeyRejected(t *testing.T) {
	skipOnWindows(t)

	s := WithConcurrencyLimit[string](1)
	if err := s.Add("a", exec.Command("sleep", "5")); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := s.Add("a", shCmd("exit 0")); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("duplicate running key: got %v, want ErrDuplicateKey", err)
	}
	if err := s.Add("b", exec.Command("sleep", "5")); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := s.Add("b", shCmd("exit 0")); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("duplicate queued key: got %v, want ErrDuplicateKey", err)
	}
	if err := s.KillAll(); err != nil {
		t.Fatalf("kill all: %v", err)
	}
}

func TestZeroLimitPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("WithConcurrencyLimit(0) did not panic")
		}
	}()
	WithConcurrencyLimit[string](0)
}

func TestSpawnFailureSurfacedFromAdd(t *testing.T) {
	skipOnWindows(t)

	s := New[string]()
	err := s.Add("ghost", exec.Command("/nonexistent/spawnwait-test-binary"))
	if err == nil {
		t.Fatalf("expected spawn error for nonexistent executable")
	}
	if s.Len() != 0 {
		t.Fatalf("failed launch was recorded, len=%d", s.Len())
	}
	if res := s.WaitAny(nil); res.Kind != KindNoProcesses {
		t.Fatalf("expected KindNoProcesses after failed add, got %q", res.Kind)
	}
}

func TestPromotionSpawnFailureReported(t *testing.T) {
	skipOnWindows(t)

	s := WithConcurrencyLimit[string](1)
	if err := s.Add("a", shCmd("exit 0")); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := s.Add("ghost", exec.Command("/nonexistent/spawnwait-test-binary")); err != nil {
		t.Fatalf("queueing a bad launch should not error: %v", err)
	}

	first := waitAny(t, s, nil)
	if first.Kind != KindSubprocess || first.Key != "a" {
		t.Fatalf("first result = %q/%q, want subprocess a", first.Kind, first.Key)
	}

	second := waitAny(t, s, nil)
	if second.Kind != KindSubprocess || second.Key != "ghost" {
		t.Fatalf("second result = %q/%q, want subprocess ghost", second.Kind, second.Key)
	}
	if second.Outcome.Err == nil {
		t.Fatalf("expected spawn error in outcome, got %s", second.Outcome)
	}

	if res := s.WaitAny(nil); res.Kind != KindNoProcesses {
		t.Fatalf("expected drained set, got %q", res.Kind)
	}
}

func TestSignalWinsOverReadyExit(t *testing.T) {
	skipOnWindows(t)

	s := New[string]()
	if err := s.Add("a", shCmd("exit 0")); err != nil {
		t.Fatalf("add a: %v", err)
	}
	// Give the child time to exit so both event sources are ready.
	time.Sleep(100 * time.Millisecond)

	h := newSignalHandler()
	h.ch <- syscall.SIGINT

	res := waitAny(t, s, h)
	if res.Kind != KindTerminationSignal {
		t.Fatalf("expected signal to win the race, got %q", res.Kind)
	}
	if res.Signal != syscall.SIGINT {
		t.Fatalf("expected SIGINT, got %v", res.Signal)
	}

	next := waitAny(t, s, h)
	if next.Kind != KindSubprocess || next.Key != "a" {
		t.Fatalf("expected a reported after the signal, got %q/%q", next.Kind, next.Key)
	}
}

func TestExitCodeReported(t *testing.T) {
	skipOnWindows(t)

	s := New[string]()
	if err := s.Add("a", shCmd("exit 3")); err != nil {
		t.Fatalf("add a: %v", err)
	}
	res := waitAny(t, s, nil)
	if res.Kind != KindSubprocess {
		t.Fatalf("unexpected result kind %q", res.Kind)
	}
	if res.Outcome.Err != nil {
		t.Fatalf("unexpected outcome error: %v", res.Outcome.Err)
	}
	if code := res.Outcome.ExitCode(); code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
	if res.Outcome.Success() {
		t.Fatalf("exit 3 reported as success")
	}
	if _, ok := res.Outcome.Signaled(); ok {
		t.Fatalf("normal exit reported as signaled")
	}
}

func TestTryWaitAny(t *testing.T) {
	skipOnWindows(t)

	s := New[string]()
	if err := s.Add("a", shCmd("sleep 0.3")); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if res, ok := s.TryWaitAny(); ok {
		t.Fatalf("TryWaitAny reported %q while child still running", res.Kind)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		res, ok := s.TryWaitAny()
		if ok {
			if res.Kind != KindSubprocess || res.Key != "a" {
				t.Fatalf("unexpected result %q/%q", res.Kind, res.Key)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for child exit")
		}
		time.Sleep(10 * time.Millisecond)
	}

	res, ok := s.TryWaitAny()
	if !ok || res.Kind != KindNoProcesses {
		t.Fatalf("expected KindNoProcesses on drained set, got ok=%v kind=%q", ok, res.Kind)
	}
}

func TestInterruptAllAndWaitDrainsRunning(t *testing.T) {
	skipOnWindows(t)

	s := New[string]()
	for _, key := range []string{"a", "b"} {
		if err := s.Add(key, exec.Command("sleep", "30")); err != nil {
			t.Fatalf("add %s: %v", key, err)
		}
	}

	h := newSignalHandler()
	done := make(chan struct{})
	var drained map[string]Outcome
	var drainErr error
	go func() {
		drained, drainErr = s.InterruptAllAndWait(h)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("shutdown sequence did not drain within 5s")
	}
	if drainErr != nil {
		t.Fatalf("shutdown sequence: %v", drainErr)
	}

	for _, key := range []string{"a", "b"} {
		outcome, ok := drained[key]
		if !ok {
			t.Fatalf("key %s missing from drained outcomes", key)
		}
		if sig, ok := outcome.Signaled(); !ok || sig != syscall.SIGINT {
			t.Fatalf("key %s outcome = %s, want killed by SIGINT", key, outcome)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("set not empty after drain, len=%d", s.Len())
	}
	if res := s.WaitAny(h); res.Kind != KindNoProcesses {
		t.Fatalf("expected idle set after drain, got %q", res.Kind)
	}
}

func TestShutdownDiscardsQueue(t *testing.T) {
	skipOnWindows(t)

	s := WithConcurrencyLimit[string](1)
	if err := s.Add("a", exec.Command("sleep", "30")); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := s.Add("b", exec.Command("sleep", "30")); err != nil {
		t.Fatalf("add b: %v", err)
	}

	drained, err := s.InterruptAllAndWait(newSignalHandler())
	if err != nil {
		t.Fatalf("shutdown sequence: %v", err)
	}
	if _, ok := drained["b"]; ok {
		t.Fatalf("queued launch b was spawned during shutdown")
	}
	if _, ok := drained["a"]; !ok {
		t.Fatalf("running launch a missing from drained outcomes")
	}
	if got := s.NumQueued(); got != 0 {
		t.Fatalf("queue not discarded, %d entries remain", got)
	}
}

func TestShutdownAbsorbsRepeatedSignals(t *testing.T) {
	skipOnWindows(t)

	s := New[string]()
	if err := s.Add("a", exec.Command("sleep", "30")); err != nil {
		t.Fatalf("add a: %v", err)
	}

	h := newSignalHandler()
	h.ch <- syscall.SIGINT
	h.ch <- syscall.SIGTERM

	drained, err := s.InterruptAllAndWait(h)
	if err != nil {
		t.Fatalf("shutdown sequence: %v", err)
	}
	if _, ok := drained["a"]; !ok {
		t.Fatalf("a missing from drained outcomes")
	}
}

func TestAddDuringShutdownRejected(t *testing.T) {
	s := New[string]()
	s.shutdown = true
	if err := s.Add("a", shCmd("exit 0")); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("got %v, want ErrShuttingDown", err)
	}
}
