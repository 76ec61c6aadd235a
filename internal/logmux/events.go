package logmux

import "time"

// EventType captures lifecycle and log notifications emitted while tasks
// run.
type EventType string

const (
	EventTypeQueued   EventType = "queued"
	EventTypeStarted  EventType = "started"
	EventTypeLog      EventType = "log"
	EventTypeExited   EventType = "exited"
	EventTypeFailed   EventType = "failed"
	EventTypeShutdown EventType = "shutdown"
)

const (
	SourceStdout = "stdout"
	SourceStderr = "stderr"
	SourceSystem = "system"
)

// Event represents a single lifecycle or log notification for a task.
type Event struct {
	Timestamp time.Time
	Task      string
	Type      EventType
	Message   string
	Level     string
	Source    string
	Err       error
}
