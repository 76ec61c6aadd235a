package procset

import (
	"fmt"
	"os"
	"syscall"
)

// Outcome describes how a child process finished. Exactly one of the
// following holds: the process exited normally (State carries the exit
// code), the process was killed by a signal (State reports it), or the
// launch or wait itself failed (Err is set and State may be nil).
type Outcome struct {
	State *os.ProcessState
	Err   error
}

// Success reports whether the process exited normally with code zero.
func (o Outcome) Success() bool {
	return o.Err == nil && o.State != nil && o.State.Success()
}

// ExitCode returns the process exit code, or -1 if the process was killed
// by a signal or never produced a status.
func (o Outcome) ExitCode() int {
	if o.State == nil {
		return -1
	}
	return o.State.ExitCode()
}

// Signaled reports the signal that terminated the process, if any.
func (o Outcome) Signaled() (syscall.Signal, bool) {
	if o.State == nil {
		return 0, false
	}
	status, ok := o.State.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return 0, false
	}
	return status.Signal(), true
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("error: %v", o.Err)
	}
	if sig, ok := o.Signaled(); ok {
		return fmt.Sprintf("killed by %s", sig)
	}
	return fmt.Sprintf("exit %d", o.ExitCode())
}
