package logging_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voxelrift/logging"
	"voxelrift/logging/sinks"
)

func newTestRouter(t *testing.T, cfg logging.Config) (*logging.Router, *sinks.MemorySink) {
	t.Helper()
	sink := sinks.NewMemorySink()
	clock := logging.ClockFunc(func() time.Time {
		return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	})
	router := logging.NewRouter(clock, cfg, []logging.NamedSink{{Name: "memory", Sink: sink}})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		router.Close(ctx)
	})
	return router, sink
}

func waitForEvents(t *testing.T, sink *sinks.MemorySink, count int) []logging.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(sink.Events()) >= count
	}, 2*time.Second, 5*time.Millisecond)
	return sink.Events()
}

func TestRouterDeliversToSinks(t *testing.T) {
	router, sink := newTestRouter(t, logging.DefaultConfig())

	router.Publish(context.Background(), logging.Event{
		Type:     "tick_overrun",
		Tick:     42,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
	})

	events := waitForEvents(t, sink, 1)
	require.Len(t, events, 1)
	require.Equal(t, logging.EventType("tick_overrun"), events[0].Type)
	require.Equal(t, uint64(42), events[0].Tick)
	require.Equal(t, time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC), events[0].Time)

	stats := router.Stats()
	require.Equal(t, uint64(1), stats.EventsTotal)
	require.Equal(t, uint64(0), stats.DroppedTotal)
}

func TestRouterFiltersBySeverity(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router, sink := newTestRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{Type: "chatter", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "trouble", Severity: logging.SeverityError})

	events := waitForEvents(t, sink, 1)
	require.Len(t, events, 1)
	require.Equal(t, logging.EventType("trouble"), events[0].Type)
}

func TestRouterAppliesStaticFields(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"region": "test", "shard": "a"}
	router, sink := newTestRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{
		Type:     "spawned",
		Severity: logging.SeverityInfo,
		Extra:    map[string]any{"shard": "b"},
	})

	events := waitForEvents(t, sink, 1)
	require.Equal(t, "test", events[0].Extra["region"])
	require.Equal(t, "b", events[0].Extra["shard"], "event fields win over router fields")
}

func TestRouterIgnoresUntypedEvents(t *testing.T) {
	router, _ := newTestRouter(t, logging.DefaultConfig())

	router.Publish(context.Background(), logging.Event{Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "real", Severity: logging.SeverityInfo})

	require.Eventually(t, func() bool {
		return router.Stats().EventsTotal == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRouterCloseDrains(t *testing.T) {
	sink := sinks.NewMemorySink()
	router := logging.NewRouter(nil, logging.DefaultConfig(), []logging.NamedSink{{Name: "memory", Sink: sink}})

	for i := 0; i < 20; i++ {
		router.Publish(context.Background(), logging.Event{
			Type:     "burst",
			Tick:     uint64(i),
			Severity: logging.SeverityInfo,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, router.Close(ctx))
	require.Len(t, sink.Events(), 20)

	// After Close the router discards further publishes.
	router.Publish(context.Background(), logging.Event{Type: "late", Severity: logging.SeverityInfo})
	require.Len(t, sink.Events(), 20)
}

func TestRouterSinkLookup(t *testing.T) {
	router, sink := newTestRouter(t, logging.DefaultConfig())

	require.Equal(t, logging.Sink(sink), router.Sink("memory"))
	require.Nil(t, router.Sink("json"))
}

func TestWithFieldsPublisher(t *testing.T) {
	var captured logging.Event
	base := logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		captured = event
	})

	wrapped := logging.WithFields(base, map[string]any{"source": "hub"})
	wrapped.Publish(context.Background(), logging.Event{
		Type:  "joined",
		Extra: map[string]any{"seq": 7},
	})

	require.Equal(t, "hub", captured.Extra["source"])
	require.Equal(t, 7, captured.Extra["seq"])

	// Wrapping nil yields a safe no-op publisher.
	require.NotPanics(t, func() {
		logging.WithFields(nil, map[string]any{"k": "v"}).Publish(context.Background(), logging.Event{Type: "x"})
	})
}
