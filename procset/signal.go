package procset

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// terminationSignals is the default set of signals treated as a request to
// shut down.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// SignalHandler observes termination-requesting signals delivered to this
// process. The underlying OS notifier is installed at most once per process;
// every call to Notify shares the same state, so constructing a second
// handler never registers a second handler with the runtime.
//
// The handler's channel is buffered, so a signal arriving between a Pending
// check and a subsequent blocking receive is never lost.
type SignalHandler struct {
	ch chan os.Signal
}

var (
	notifyOnce sync.Once
	sharedHand *SignalHandler
)

// Notify returns the process-wide signal handler, installing it on first
// use. With no arguments the handler observes SIGINT and SIGTERM; the signal
// set passed to the first call wins for the lifetime of the process.
func Notify(sigs ...os.Signal) *SignalHandler {
	notifyOnce.Do(func() {
		if len(sigs) == 0 {
			sigs = terminationSignals
		}
		sharedHand = newSignalHandler()
		signal.Notify(sharedHand.ch, sigs...)
	})
	return sharedHand
}

func newSignalHandler() *SignalHandler {
	// Capacity absorbs bursts delivered while the driver is busy between
	// WaitAny calls.
	return &SignalHandler{ch: make(chan os.Signal, 8)}
}

// Pending consumes and returns a termination signal if one has arrived since
// the last check. It never blocks.
func (h *SignalHandler) Pending() (os.Signal, bool) {
	select {
	case sig := <-h.ch:
		return sig, true
	default:
		return nil, false
	}
}

// C exposes the signal channel for use inside a select.
func (h *SignalHandler) C() <-chan os.Signal {
	return h.ch
}
