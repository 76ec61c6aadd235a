package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Paintersrp/spawnwait/internal/cliutil"
	"github.com/Paintersrp/spawnwait/internal/config"
	"github.com/Paintersrp/spawnwait/internal/logmux"
	"github.com/Paintersrp/spawnwait/internal/metrics"
	"github.com/Paintersrp/spawnwait/internal/tui"
	"github.com/Paintersrp/spawnwait/procset"
)

// runner drives one `spawnwait run` invocation: it feeds the manifest into a
// process set, mirrors scheduler transitions as events, and reports every
// completion exactly once.
type runner struct {
	manifest    *config.Manifest
	limit       int
	metricsAddr string
	useTUI      bool
	jsonLogs    bool
	stdout      io.Writer
	stderr      io.Writer

	mux     *logmux.Mux
	set     *procset.ProcessSet[string]
	writers map[string][]*logmux.LineWriter
	started map[string]time.Time

	// pending mirrors the set's FIFO queue. The scheduler promotes exactly
	// one queued launch per vacated slot in insertion order, so the head of
	// this slice is the task that starts on each completion.
	pending []string

	failures int
}

func (r *runner) run() error {
	r.mux = logmux.New(256)
	r.writers = make(map[string][]*logmux.LineWriter)
	r.started = make(map[string]time.Time)
	if r.limit > 0 {
		r.set = procset.WithConcurrencyLimit[string](r.limit)
	} else {
		r.set = procset.New[string]()
	}
	handler := procset.Notify()

	consumerDone := r.startConsumer()
	stopMetrics, err := r.serveMetrics()
	if err != nil {
		r.closeAllWriters()
		r.mux.Close()
		<-consumerDone
		return err
	}

	interrupted, superviseErr := r.supervise(handler)

	r.closeAllWriters()
	r.mux.Close()
	<-consumerDone
	if stopMetrics != nil {
		stopMetrics()
	}

	switch {
	case superviseErr != nil:
		return superviseErr
	case interrupted:
		return &exitStatusError{code: 130, msg: "interrupted"}
	case r.failures > 0:
		return &exitStatusError{code: 1, msg: fmt.Sprintf("%d task(s) failed", r.failures)}
	}
	return nil
}

// supervise runs the wait-any loop until the set drains or a termination
// signal arrives. It reports whether the run was interrupted.
func (r *runner) supervise(handler *procset.SignalHandler) (bool, error) {
	for _, task := range r.manifest.Tasks {
		r.addTask(task)
	}

	for {
		metrics.SetSchedulerState(r.set.NumRunning(), r.set.NumQueued())
		res := r.set.WaitAny(handler)
		switch res.Kind {
		case procset.KindNoProcesses:
			metrics.SetSchedulerState(0, 0)
			return false, nil

		case procset.KindTerminationSignal:
			r.mux.Emit(logmux.Event{
				Type:    logmux.EventTypeShutdown,
				Level:   "warn",
				Message: fmt.Sprintf("received %s, interrupting %d running task(s)", res.Signal, r.set.NumRunning()),
			})
			for _, name := range r.pending {
				r.mux.Emit(logmux.Event{
					Task:    name,
					Type:    logmux.EventTypeShutdown,
					Level:   "warn",
					Message: "cancelled before start",
				})
			}
			r.pending = nil

			drained, err := r.set.InterruptAllAndWait(handler)
			for name, outcome := range drained {
				r.finishTask(name, outcome)
			}
			metrics.SetSchedulerState(0, 0)
			return true, err

		case procset.KindSubprocess:
			r.finishTask(res.Key, res.Outcome)
			r.notifyPromotion()
		}
	}
}

func (r *runner) addTask(task *config.Task) {
	cmd := task.Cmd()
	stdout := r.mux.Writer(task.Name, logmux.SourceStdout)
	stderr := r.mux.Writer(task.Name, logmux.SourceStderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	r.writers[task.Name] = []*logmux.LineWriter{stdout, stderr}

	before := r.set.NumRunning()
	if err := r.set.Add(task.Name, cmd); err != nil {
		r.failures++
		metrics.ObserveCompletion(task.Name, "error", 0)
		r.mux.Emit(logmux.Event{
			Task:    task.Name,
			Type:    logmux.EventTypeFailed,
			Level:   "error",
			Message: "failed to start",
			Err:     err,
		})
		r.closeWriters(task.Name)
		return
	}

	if r.set.NumRunning() > before {
		r.markStarted(task.Name)
	} else {
		r.pending = append(r.pending, task.Name)
		r.mux.Emit(logmux.Event{
			Task:    task.Name,
			Type:    logmux.EventTypeQueued,
			Message: "waiting for a free slot",
		})
	}
}

func (r *runner) markStarted(name string) {
	r.started[name] = time.Now()
	r.mux.Emit(logmux.Event{
		Task:    name,
		Type:    logmux.EventTypeStarted,
		Message: "started",
	})
}

func (r *runner) notifyPromotion() {
	if len(r.pending) == 0 {
		return
	}
	name := r.pending[0]
	r.pending = r.pending[1:]
	r.markStarted(name)
}

func (r *runner) finishTask(name string, outcome procset.Outcome) {
	r.closeWriters(name)

	var d time.Duration
	if t0, ok := r.started[name]; ok {
		d = time.Since(t0)
	}
	metrics.ObserveCompletion(name, classifyOutcome(outcome), d)

	evt := logmux.Event{Task: name, Message: outcome.String()}
	if outcome.Success() {
		evt.Type = logmux.EventTypeExited
	} else {
		evt.Type = logmux.EventTypeFailed
		evt.Level = "error"
		evt.Err = outcome.Err
		r.failures++
	}
	r.mux.Emit(evt)
}

func classifyOutcome(outcome procset.Outcome) string {
	switch {
	case outcome.Err != nil:
		return "error"
	case outcome.Success():
		return "success"
	default:
		if _, ok := outcome.Signaled(); ok {
			return "signaled"
		}
		return "failure"
	}
}

func (r *runner) closeWriters(name string) {
	for _, w := range r.writers[name] {
		_ = w.Close()
	}
	delete(r.writers, name)
}

func (r *runner) closeAllWriters() {
	for name := range r.writers {
		r.closeWriters(name)
	}
}

// startConsumer drains the mux until it closes, either into the TUI or onto
// the output stream. The returned channel closes when the consumer is done.
func (r *runner) startConsumer() chan struct{} {
	done := make(chan struct{})

	if r.useTUI {
		ui := tui.New(requestShutdown)
		go func() {
			defer close(done)
			if err := ui.Run(); err != nil {
				fmt.Fprintf(r.stderr, "error: tui: %v\n", err)
			}
		}()
		go func() {
			for evt := range r.mux.Output() {
				ui.EventSink() <- evt
			}
			ui.CloseEvents()
			// Leave the final table on screen briefly before tearing down.
			time.Sleep(100 * time.Millisecond)
			ui.Stop()
		}()
		return done
	}

	enc := json.NewEncoder(r.stdout)
	go func() {
		defer close(done)
		for evt := range r.mux.Output() {
			if r.jsonLogs {
				cliutil.EncodeLogEvent(enc, r.stderr, evt)
			} else {
				r.printPlain(evt)
			}
		}
	}()
	return done
}

func (r *runner) printPlain(evt logmux.Event) {
	ts := evt.Timestamp.Format("15:04:05")
	msg := cliutil.RedactSecrets(evt.Message)
	if evt.Type == logmux.EventTypeLog {
		fmt.Fprintf(r.stdout, "%s %s | %s\n", ts, evt.Task, msg)
		return
	}
	if evt.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, cliutil.RedactSecrets(evt.Err.Error()))
	}
	name := evt.Task
	if name == "" {
		name = "spawnwait"
	}
	fmt.Fprintf(r.stdout, "%s %s [%s] %s\n", ts, name, evt.Type, msg)
}

// requestShutdown reroutes a keyboard quit through the ordinary signal path
// so the TUI and Ctrl-C shutdowns behave identically.
func requestShutdown() {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return
	}
	_ = p.Signal(os.Interrupt)
}

func (r *runner) serveMetrics() (func(), error) {
	if r.metricsAddr == "" {
		return nil, nil
	}

	ln, err := net.Listen("tcp", r.metricsAddr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	srv := &http.Server{
		Handler: promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}),
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		if err := g.Wait(); err != nil {
			fmt.Fprintf(r.stderr, "error: metrics server: %v\n", err)
		}
	}
	return stop, nil
}
