package procset

import (
	"fmt"
	"os"
	"os/exec"
)

// ResultKind tags the outcome of a WaitAny call.
type ResultKind string

const (
	// KindSubprocess reports that a child finished; Key and Outcome are set.
	KindSubprocess ResultKind = "subprocess"
	// KindTerminationSignal reports that a termination signal arrived;
	// Signal is set.
	KindTerminationSignal ResultKind = "termination_signal"
	// KindNoProcesses reports that nothing is running or queued.
	KindNoProcesses ResultKind = "no_processes"
)

// WaitResult is the tagged result of a single WaitAny call.
type WaitResult[K comparable] struct {
	Kind    ResultKind
	Key     K
	Outcome Outcome
	Signal  os.Signal
}

type launch[K comparable] struct {
	key K
	cmd *exec.Cmd
}

// ProcessSet supervises a keyed set of child processes under an optional
// concurrency ceiling. Launches beyond the ceiling wait in a FIFO queue and
// are promoted as running children exit.
//
// A ProcessSet must be driven by a single goroutine; see the package
// documentation.
type ProcessSet[K comparable] struct {
	limit    int // 0 means unlimited
	queue    []launch[K]
	running  map[K]*Handle[K]
	failed   []WaitResult[K] // promotion-time spawn failures awaiting report
	exits    chan exitEvent[K]
	shutdown bool
}

// New constructs a ProcessSet with no concurrency ceiling.
func New[K comparable]() *ProcessSet[K] {
	return &ProcessSet[K]{
		running: make(map[K]*Handle[K]),
		exits:   make(chan exitEvent[K]),
	}
}

// WithConcurrencyLimit constructs a ProcessSet that never runs more than
// limit children at once. It panics if limit is less than one, since such a
// set could never admit work.
func WithConcurrencyLimit[K comparable](limit int) *ProcessSet[K] {
	if limit < 1 {
		panic(fmt.Sprintf("procset: concurrency limit must be >= 1, got %d", limit))
	}
	s := New[K]()
	s.limit = limit
	return s
}

// Add registers a launch under key. If a slot is free the process is started
// immediately and a spawn failure is returned synchronously, tagged with the
// key; on failure the key is not recorded anywhere. With all slots taken the
// launch is appended to the queue.
//
// The command must not have been started, and the caller must not call Wait
// on it afterwards; the set owns reaping from here on.
func (s *ProcessSet[K]) Add(key K, cmd *exec.Cmd) error {
	if s.shutdown {
		return fmt.Errorf("add %v: %w", key, ErrShuttingDown)
	}
	if s.contains(key) {
		return fmt.Errorf("add %v: %w", key, ErrDuplicateKey)
	}
	if s.hasCapacity() {
		h, err := spawn(key, cmd, s.exits)
		if err != nil {
			return fmt.Errorf("add %v: %w", key, err)
		}
		s.running[key] = h
		return nil
	}
	s.queue = append(s.queue, launch[K]{key: key, cmd: cmd})
	return nil
}

// WaitAny blocks until a child exits or a termination signal arrives,
// whichever happens first, and returns a tagged result. When both are ready
// the signal wins, so a stream of exits can never starve a shutdown request.
//
// With an idle set (nothing running, nothing queued) it returns
// KindNoProcesses without blocking. handler may be nil, in which case only
// exits are observed.
//
// Call WaitAny in a loop to collect every completion; each added key is
// reported exactly once.
func (s *ProcessSet[K]) WaitAny(handler *SignalHandler) WaitResult[K] {
	s.promote()
	if res, ok := s.takeFailed(); ok {
		return res
	}
	if len(s.running) == 0 && len(s.queue) == 0 {
		return WaitResult[K]{Kind: KindNoProcesses}
	}
	if handler != nil {
		if sig, ok := handler.Pending(); ok {
			return WaitResult[K]{Kind: KindTerminationSignal, Signal: sig}
		}
		select {
		case ev := <-s.exits:
			return s.finish(ev)
		case sig := <-handler.C():
			return WaitResult[K]{Kind: KindTerminationSignal, Signal: sig}
		}
	}
	return s.finish(<-s.exits)
}

// TryWaitAny is the non-blocking form of WaitAny. It reports false when
// children are still running but none has finished yet, and never returns
// KindTerminationSignal.
func (s *ProcessSet[K]) TryWaitAny() (WaitResult[K], bool) {
	s.promote()
	if res, ok := s.takeFailed(); ok {
		return res, true
	}
	if len(s.running) == 0 && len(s.queue) == 0 {
		return WaitResult[K]{Kind: KindNoProcesses}, true
	}
	select {
	case ev := <-s.exits:
		return s.finish(ev), true
	default:
		return WaitResult[K]{}, false
	}
}

// InterruptAll sends an interrupt to every running child. Targets that have
// already exited are skipped; the first real delivery error is returned
// after all children have been attempted.
func (s *ProcessSet[K]) InterruptAll() error {
	return s.signalAll(os.Interrupt)
}

// KillAll forcibly terminates every running child and reaps them before
// returning. Queued launches are left untouched.
func (s *ProcessSet[K]) KillAll() error {
	firstErr := s.signalAll(os.Kill)
	for len(s.running) > 0 {
		ev := <-s.exits
		delete(s.running, ev.key)
		if ev.outcome.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("kill %v: %w", ev.key, ev.outcome.Err)
		}
	}
	return firstErr
}

// InterruptAllAndWait runs the shutdown sequence: discard every queued
// launch (nothing new is spawned once shutdown has been requested), send an
// interrupt to all running children, then wait for them to finish, absorbing
// any further termination signals. It returns the outcome of every child
// that was running, keyed by its key.
//
// Once the set has drained it returns to the idle state and accepts new
// launches again.
func (s *ProcessSet[K]) InterruptAllAndWait(handler *SignalHandler) (map[K]Outcome, error) {
	s.shutdown = true
	defer func() { s.shutdown = false }()

	s.queue = nil
	var firstErr error
	if err := s.InterruptAll(); err != nil {
		firstErr = err
	}

	drained := make(map[K]Outcome, len(s.running)+len(s.failed))
	for len(s.running) > 0 || len(s.failed) > 0 {
		res := s.WaitAny(handler)
		switch res.Kind {
		case KindSubprocess:
			drained[res.Key] = res.Outcome
			if res.Outcome.Err != nil && firstErr == nil {
				firstErr = fmt.Errorf("wait %v: %w", res.Key, res.Outcome.Err)
			}
		case KindTerminationSignal:
			// Already shutting down; absorb repeated requests.
		case KindNoProcesses:
			return drained, firstErr
		}
	}
	return drained, firstErr
}

// NumRunning returns the number of currently live children.
func (s *ProcessSet[K]) NumRunning() int { return len(s.running) }

// NumQueued returns the number of launches awaiting a free slot.
func (s *ProcessSet[K]) NumQueued() int { return len(s.queue) }

// Len returns the number of unfinished entries in the set.
func (s *ProcessSet[K]) Len() int {
	return len(s.running) + len(s.queue) + len(s.failed)
}

func (s *ProcessSet[K]) hasCapacity() bool {
	return s.limit == 0 || len(s.running) < s.limit
}

func (s *ProcessSet[K]) contains(key K) bool {
	if _, ok := s.running[key]; ok {
		return true
	}
	for _, l := range s.queue {
		if l.key == key {
			return true
		}
	}
	for _, f := range s.failed {
		if f.Key == key {
			return true
		}
	}
	return false
}

// promote moves queued launches into free slots in FIFO order. A launch that
// fails to spawn does not occupy its slot; the failure is parked for the
// next WaitAny so the key is still reported exactly once.
func (s *ProcessSet[K]) promote() {
	for len(s.queue) > 0 && s.hasCapacity() {
		next := s.queue[0]
		s.queue = s.queue[1:]
		h, err := spawn(next.key, next.cmd, s.exits)
		if err != nil {
			s.failed = append(s.failed, WaitResult[K]{
				Kind:    KindSubprocess,
				Key:     next.key,
				Outcome: Outcome{Err: err},
			})
			continue
		}
		s.running[next.key] = h
	}
}

func (s *ProcessSet[K]) takeFailed() (WaitResult[K], bool) {
	if len(s.failed) == 0 {
		return WaitResult[K]{}, false
	}
	res := s.failed[0]
	s.failed = s.failed[1:]
	return res, true
}

func (s *ProcessSet[K]) finish(ev exitEvent[K]) WaitResult[K] {
	delete(s.running, ev.key)
	if !s.shutdown {
		s.promote()
	}
	return WaitResult[K]{Kind: KindSubprocess, Key: ev.key, Outcome: ev.outcome}
}

func (s *ProcessSet[K]) signalAll(sig os.Signal) error {
	var firstErr error
	for key, h := range s.running {
		if err := h.Signal(sig); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("signal %v: %w", key, err)
		}
	}
	return firstErr
}
