// Package replay records command and state-event streams as JSONL so a
// session can be replayed through the shared step function and checked for
// determinism drift.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"voxelrift/internal/sim"
)

// InputLogger appends one command per line to a JSONL file.
type InputLogger struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	written uint64
}

// CreateInputLog opens a fresh input log at path, truncating any previous
// one.
func CreateInputLog(path string) (*InputLogger, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create input log %s: %w", path, err)
	}
	writer := bufio.NewWriter(file)
	return &InputLogger{file: file, writer: writer, encoder: json.NewEncoder(writer)}, nil
}

// Log appends one command. The command's own tick and owner are the replay
// keys, so the record needs nothing else.
func (l *InputLogger) Log(cmd sim.Command) error {
	if err := l.encoder.Encode(cmd); err != nil {
		return err
	}
	l.written++
	return nil
}

// Written reports the number of commands logged.
func (l *InputLogger) Written() uint64 { return l.written }

// Close flushes and closes the log.
func (l *InputLogger) Close() error {
	if err := l.writer.Flush(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// EventLogger appends state events to a JSONL file.
type EventLogger struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	written uint64
}

// CreateEventLog opens a fresh event log at path.
func CreateEventLog(path string) (*EventLogger, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event log %s: %w", path, err)
	}
	writer := bufio.NewWriter(file)
	return &EventLogger{file: file, writer: writer, encoder: json.NewEncoder(writer)}, nil
}

// Log appends one event.
func (l *EventLogger) Log(event StateEvent) error {
	if err := l.encoder.Encode(event); err != nil {
		return err
	}
	l.written++
	return nil
}

// LogTick derives and appends the events for one step.
func (l *EventLogger) LogTick(prev, next sim.WorldState) error {
	for _, event := range EventsBetween(prev, next) {
		if err := l.Log(event); err != nil {
			return err
		}
	}
	return nil
}

// Written reports the number of events logged.
func (l *EventLogger) Written() uint64 { return l.written }

// Close flushes and closes the log.
func (l *EventLogger) Close() error {
	if err := l.writer.Flush(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
