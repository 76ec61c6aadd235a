package logmux

import (
	"bytes"
	"fmt"
	"sync"
	"time"
)

// Mux fans in output lines and lifecycle notifications from multiple tasks
// and delivers them via a single bounded channel. When downstream consumers
// cannot keep up and the buffer would overflow, the mux drops log records
// and emits a synthesized warning event to surface the number of discarded
// entries. Lifecycle events are never dropped; their producers block until
// the consumer catches up.
type Mux struct {
	out chan Event

	mu      sync.Mutex
	drops   map[string]int
	writers sync.WaitGroup
}

// New constructs a mux backed by a channel of the provided size. A size of
// zero results in a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:   make(chan Event, size),
		drops: make(map[string]int),
	}
}

// Output exposes the muxed event channel.
func (m *Mux) Output() <-chan Event {
	return m.out
}

// Emit delivers a lifecycle event, blocking until the consumer accepts it.
func (m *Mux) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.Source == "" {
		evt.Source = SourceSystem
	}
	if evt.Level == "" {
		evt.Level = "info"
	}
	m.out <- evt
}

// Close flushes pending drop counters and closes the output channel. All
// writers must have been closed first.
func (m *Mux) Close() {
	m.writers.Wait()
	m.mu.Lock()
	pending := m.drops
	m.drops = map[string]int{}
	m.mu.Unlock()
	for task, count := range pending {
		m.out <- dropEvent(task, count)
	}
	close(m.out)
}

// deliver enqueues a log event without blocking, recording a drop when the
// buffer is full.
func (m *Mux) deliver(evt Event) {
	m.mu.Lock()
	pending := m.drops[evt.Task]
	if pending > 0 {
		// Report the gap before resuming the stream.
		select {
		case m.out <- dropEvent(evt.Task, pending):
			delete(m.drops, evt.Task)
		default:
			m.drops[evt.Task]++
			m.mu.Unlock()
			return
		}
	}
	select {
	case m.out <- evt:
	default:
		m.drops[evt.Task]++
	}
	m.mu.Unlock()
}

func dropEvent(task string, count int) Event {
	return Event{
		Timestamp: time.Now(),
		Task:      task,
		Type:      EventTypeLog,
		Level:     "warn",
		Source:    SourceSystem,
		Message:   fmt.Sprintf("dropped %d log line(s)", count),
	}
}

// Writer returns an io.WriteCloser suitable for a child's stdout or stderr.
// Each complete line becomes one log event. Close flushes a trailing partial
// line and must be called once the child has exited.
func (m *Mux) Writer(task, source string) *LineWriter {
	m.writers.Add(1)
	return &LineWriter{mux: m, task: task, source: source}
}

// LineWriter splits a child output stream into per-line log events.
type LineWriter struct {
	mux    *Mux
	task   string
	source string

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, fmt.Errorf("write to closed log writer for task %s", w.task)
	}
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line stays buffered until more data or Close.
			w.buf.WriteString(line)
			break
		}
		w.emit(line[:len(line)-1])
	}
	return len(p), nil
}

// Close flushes any buffered partial line and releases the writer.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
	w.mux.writers.Done()
	return nil
}

func (w *LineWriter) emit(line string) {
	level := "info"
	if w.source == SourceStderr {
		level = "warn"
	}
	w.mux.deliver(Event{
		Timestamp: time.Now(),
		Task:      w.task,
		Type:      EventTypeLog,
		Message:   line,
		Level:     level,
		Source:    w.source,
	})
}
