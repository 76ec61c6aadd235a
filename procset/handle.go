package procset

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Handle owns one spawned child process. It is created when a launch is
// promoted (the process actually started) and retired when the exit outcome
// has been observed.
type Handle[K comparable] struct {
	key K
	cmd *exec.Cmd
}

type exitEvent[K comparable] struct {
	key     K
	outcome Outcome
}

// spawn starts the command and begins reaping it. The exit outcome is
// delivered exactly once on the exits channel.
func spawn[K comparable](key K, cmd *exec.Cmd, exits chan<- exitEvent[K]) (*Handle[K], error) {
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}
	h := &Handle[K]{key: key, cmd: cmd}
	go func() {
		exits <- exitEvent[K]{key: key, outcome: h.reap()}
	}()
	return h, nil
}

// Key returns the caller-supplied key associated with the child.
func (h *Handle[K]) Key() K { return h.key }

// Pid returns the OS process id of the child.
func (h *Handle[K]) Pid() int {
	if h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// Signal delivers sig to the child if it is still believed alive. Racing
// with a natural exit is expected: a target that is already gone is not an
// error.
func (h *Handle[K]) Signal(sig os.Signal) error {
	if h.cmd.Process == nil {
		return nil
	}
	err := h.cmd.Process.Signal(sig)
	if err == nil || errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// reap blocks until the child has exited and converts the wait result into
// an Outcome. It must be called at most once.
func (h *Handle[K]) reap() Outcome {
	err := h.cmd.Wait()
	if err == nil {
		return Outcome{State: h.cmd.ProcessState}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Outcome{State: exitErr.ProcessState}
	}
	return Outcome{State: h.cmd.ProcessState, Err: fmt.Errorf("wait: %w", err)}
}
