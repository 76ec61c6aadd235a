package tui

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/spawnwait/internal/cliutil"
	"github.com/Paintersrp/spawnwait/internal/logmux"
)

const tableTitle = "Tasks"

// UI renders a live status table for the running task set backed by tview.
// Events flow in through EventSink; pressing q (or Ctrl-C) invokes the quit
// callback so the driver can start the same graceful shutdown it performs
// for a termination signal.
type UI struct {
	app    *tview.Application
	table  *tview.Table
	events chan logmux.Event
	onQuit func()

	mu    sync.Mutex
	tasks map[string]*taskState
	order []string

	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

type taskState struct {
	name      string
	state     logmux.EventType
	detail    string
	firstSeen time.Time
	started   time.Time
	finished  time.Time
}

// New constructs a UI. onQuit is invoked at most once when the user requests
// shutdown from the keyboard; it must not block.
func New(onQuit func()) *UI {
	app := tview.NewApplication()
	table := tview.NewTable().SetFixed(1, 0).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	ui := &UI{
		app:    app,
		table:  table,
		events: make(chan logmux.Event, 256),
		onQuit: onQuit,
		tasks:  make(map[string]*taskState),
		done:   make(chan struct{}),
	}

	app.SetRoot(table, true)
	app.SetInputCapture(ui.handleKey)
	return ui
}

// EventSink exposes the channel where task events should be delivered.
func (u *UI) EventSink() chan<- logmux.Event {
	return u.events
}

// CloseEvents releases the event channel, allowing the consumer goroutine to
// exit once the stream has drained.
func (u *UI) CloseEvents() {
	u.closeOnce.Do(func() {
		close(u.events)
	})
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run starts the tview application and processes incoming events until Stop
// is invoked.
func (u *UI) Run() error {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.consumeEvents()
	}()

	err := u.app.Run()
	u.Stop()
	return err
}

// Stop terminates the application loop.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) consumeEvents() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-u.events:
			if !ok {
				return
			}
			u.apply(evt)
			u.redraw()
		case <-ticker.C:
			u.redraw()
		}
	}
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyCtrlC {
		u.requestQuit()
		return nil
	}
	if event.Key() == tcell.KeyRune {
		switch event.Rune() {
		case 'q', 'Q':
			u.requestQuit()
			return nil
		}
	}
	return event
}

func (u *UI) requestQuit() {
	if u.onQuit != nil {
		u.onQuit()
	}
}

// apply folds one event into the task table state.
func (u *UI) apply(evt logmux.Event) {
	u.mu.Lock()
	defer u.mu.Unlock()

	state, ok := u.tasks[evt.Task]
	if !ok {
		if evt.Task == "" {
			return
		}
		state = &taskState{name: evt.Task, firstSeen: evt.Timestamp}
		u.tasks[evt.Task] = state
		u.order = append(u.order, evt.Task)
	}

	switch evt.Type {
	case logmux.EventTypeQueued, logmux.EventTypeStarted,
		logmux.EventTypeExited, logmux.EventTypeFailed, logmux.EventTypeShutdown:
		state.state = evt.Type
		state.detail = cliutil.RedactSecrets(evt.Message)
		switch evt.Type {
		case logmux.EventTypeStarted:
			state.started = evt.Timestamp
		case logmux.EventTypeExited, logmux.EventTypeFailed:
			state.finished = evt.Timestamp
		}
	case logmux.EventTypeLog:
		// Keep the last output line visible next to the state.
		state.detail = cliutil.RedactSecrets(evt.Message)
	}
}

func (u *UI) redraw() {
	select {
	case <-u.done:
		// Queueing a draw after Stop would block forever.
		return
	default:
	}
	u.app.QueueUpdateDraw(func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.renderLocked()
	})
}

func (u *UI) renderLocked() {
	u.table.Clear()
	for col, header := range []string{"TASK", "STATE", "DURATION", "DETAIL"} {
		cell := tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false)
		u.table.SetCell(0, col, cell)
	}

	rows := make([]*taskState, 0, len(u.order))
	for _, name := range u.order {
		rows = append(rows, u.tasks[name])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].firstSeen.Before(rows[j].firstSeen)
	})

	for i, state := range rows {
		row := i + 1
		u.table.SetCell(row, 0, tview.NewTableCell(state.name))
		u.table.SetCell(row, 1, tview.NewTableCell(string(state.state)).
			SetTextColor(stateColor(state.state)))
		u.table.SetCell(row, 2, tview.NewTableCell(formatDuration(state, time.Now())))
		u.table.SetCell(row, 3, tview.NewTableCell(state.detail).SetExpansion(1))
	}
}

func stateColor(state logmux.EventType) tcell.Color {
	switch state {
	case logmux.EventTypeStarted:
		return tcell.ColorGreen
	case logmux.EventTypeFailed:
		return tcell.ColorRed
	case logmux.EventTypeExited:
		return tcell.ColorBlue
	case logmux.EventTypeShutdown:
		return tcell.ColorOrange
	default:
		return tcell.ColorWhite
	}
}

func formatDuration(state *taskState, now time.Time) string {
	if state.started.IsZero() {
		return "-"
	}
	end := state.finished
	if end.IsZero() {
		end = now
	}
	d := end.Sub(state.started)
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
