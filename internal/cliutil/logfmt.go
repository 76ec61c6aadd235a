package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Paintersrp/spawnwait/internal/logmux"
)

// LogRecord represents a structured task event ready for JSON encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	Task      string    `json:"task"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source"`
	Error     string    `json:"error,omitempty"`
}

// NewLogRecord converts a mux event into a structured log record. Messages
// pass through secret redaction since task commands and environments are
// user supplied.
func NewLogRecord(event logmux.Event) LogRecord {
	level := event.Level
	if level == "" {
		level = "info"
	}
	source := event.Source
	if source == "" {
		source = logmux.SourceSystem
	}
	record := LogRecord{
		Timestamp: event.Timestamp,
		Task:      event.Task,
		Type:      string(event.Type),
		Level:     level,
		Message:   RedactSecrets(event.Message),
		Source:    source,
	}
	if event.Err != nil {
		record.Error = RedactSecrets(event.Err.Error())
	}
	return record
}

// EncodeLogEvent encodes a task event to JSON, reporting errors to stderr if
// needed.
func EncodeLogEvent(enc *json.Encoder, stderr io.Writer, event logmux.Event) {
	if enc == nil {
		return
	}
	record := NewLogRecord(event)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}
