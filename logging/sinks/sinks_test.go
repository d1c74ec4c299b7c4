package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voxelrift/logging"
)

func TestJSONSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf, 0)

	require.NoError(t, sink.Write(logging.Event{
		Type:     "keyframe_recorded",
		Tick:     9,
		Severity: logging.SeverityInfo,
		Subject:  logging.SubjectRef{ID: "world", Kind: logging.SubjectKindWorld},
	}))
	require.NoError(t, sink.Write(logging.Event{Type: "tick_overrun", Tick: 10}))
	require.NoError(t, sink.Close(context.Background()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first logging.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, logging.EventType("keyframe_recorded"), first.Type)
	require.Equal(t, uint64(9), first.Tick)
	require.Equal(t, logging.SubjectKindWorld, first.Subject.Kind)
}

func TestJSONSinkBuffersUntilClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf, time.Hour)

	require.NoError(t, sink.Write(logging.Event{Type: "buffered"}))
	require.Zero(t, buf.Len())

	require.NoError(t, sink.Close(context.Background()))
	require.Contains(t, buf.String(), `"buffered"`)
}

func TestMemorySinkReset(t *testing.T) {
	sink := NewMemorySink()
	require.NoError(t, sink.Write(logging.Event{Type: "a"}))
	require.NoError(t, sink.Write(logging.Event{Type: "b"}))
	require.Len(t, sink.Events(), 2)

	// Events returns a copy, mutating it must not touch the sink.
	events := sink.Events()
	events[0].Type = "mutated"
	require.Equal(t, logging.EventType("a"), sink.Events()[0].Type)

	sink.Reset()
	require.Empty(t, sink.Events())
}

func TestConsoleSinkFormatsSubjectAndPayload(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)

	require.NoError(t, sink.Write(logging.Event{
		Type:     "resync_forced",
		Tick:     3,
		Severity: logging.SeverityWarn,
		Subject:  logging.SubjectRef{ID: "c1", Kind: logging.SubjectKindConnection},
		Payload:  map[string]any{"reason": "ack_timeout"},
	}))

	line := buf.String()
	require.Contains(t, line, "[resync_forced]")
	require.Contains(t, line, "tick=3")
	require.Contains(t, line, "subject=connection:c1")
	require.Contains(t, line, "severity=warn")
	require.Contains(t, line, `payload={"reason":"ack_timeout"}`)
}
