package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"voxelrift/internal/config"
	"voxelrift/internal/net/channel"
	"voxelrift/internal/net/proto"
	"voxelrift/internal/snapshot"
)

type memorySender struct {
	mu         sync.Mutex
	frames     map[channel.ID][][]byte
	closed     bool
	backlogged bool
}

func newMemorySender() *memorySender {
	return &memorySender{frames: make(map[channel.ID][][]byte)}
}

func (s *memorySender) Send(ch channel.ID, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(frame))
	copy(copied, frame)
	s.frames[ch] = append(s.frames[ch], copied)
	return nil
}

func (s *memorySender) TrySend(ch channel.ID, frame []byte) error {
	s.mu.Lock()
	blocked := s.backlogged
	s.mu.Unlock()
	if blocked {
		if profile, ok := channel.ProfileFor(ch); ok && profile.Reliable {
			return ErrBackpressure
		}
		return nil
	}
	return s.Send(ch, frame)
}

// setBacklogged makes reliable-lane TrySend behave like a full write queue.
func (s *memorySender) setBacklogged(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlogged = v
}

func (s *memorySender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySender) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// byType returns the frames of the given message type, newest last.
func (s *memorySender) byType(t *testing.T, ch channel.ID, msgType string) [][]byte {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, frame := range s.frames[ch] {
		env, err := proto.DecodeServerEnvelope(frame)
		require.NoError(t, err)
		if env.Type == msgType {
			out = append(out, frame)
		}
	}
	return out
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Chunks.Radius = 0
	cfg.Chunks.SendsPerTick = 1
	return cfg
}

func TestJoinSpawnsEntityAndSendsKeyframe(t *testing.T) {
	hub := NewHub(testConfig(), nil, nil, nil)
	sender := newMemorySender()
	conn := hub.Join(sender)

	hub.Advance(time.Now())

	state := hub.State()
	_, ok := state.Entities[conn.Entity]
	require.True(t, ok, "entity should spawn on the first tick after join")

	keyframes := sender.byType(t, channel.EntityDelta, proto.TypeKeyframe)
	require.Len(t, keyframes, 1)

	var frame struct {
		Resync   string               `json:"resync"`
		Config   proto.KeyframeConfig `json:"config"`
		Entities []json.RawMessage    `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(keyframes[0], &frame))
	require.Equal(t, uint64(conn.Entity), frame.Config.SelfID)
	require.Equal(t, hub.Seed(), frame.Config.Seed)
	require.Equal(t, snapshot.ResyncNeverAcked, frame.Resync)
	require.Len(t, frame.Entities, 1)
}

func TestAckedConnectionReceivesDeltas(t *testing.T) {
	hub := NewHub(testConfig(), nil, nil, nil)
	sender := newMemorySender()
	conn := hub.Join(sender)

	now := time.Now()
	first := hub.Advance(now)
	hub.HandleMessage(conn, []byte(fmt.Sprintf(`{"type":"ack","ack":%d}`, first.Tick)))

	hub.Advance(now)

	deltas := sender.byType(t, channel.EntityDelta, proto.TypeDelta)
	require.Len(t, deltas, 1)

	var frame struct {
		Tick     uint64 `json:"tick"`
		BaseTick uint64 `json:"baseTick"`
	}
	require.NoError(t, json.Unmarshal(deltas[0], &frame))
	require.Equal(t, uint64(first.Tick), frame.BaseTick)
	require.Equal(t, uint64(first.Tick)+1, frame.Tick)
}

func TestAckTimeoutForcesKeyframe(t *testing.T) {
	cfg := testConfig()
	cfg.Journal.AckTimeout = time.Second
	hub := NewHub(cfg, nil, nil, nil)
	sender := newMemorySender()
	conn := hub.Join(sender)

	now := time.Now()
	first := hub.Advance(now)
	hub.HandleMessage(conn, []byte(fmt.Sprintf(`{"type":"ack","ack":%d}`, first.Tick)))
	hub.Advance(now)

	// No further acks; past the timeout the delta chain degrades to a full
	// keyframe tagged with the reason.
	hub.Advance(now.Add(2 * time.Second))

	keyframes := sender.byType(t, channel.EntityDelta, proto.TypeKeyframe)
	require.Len(t, keyframes, 2)

	var frame struct {
		Resync string `json:"resync"`
	}
	require.NoError(t, json.Unmarshal(keyframes[1], &frame))
	require.Equal(t, snapshot.ResyncAckTimeout, frame.Resync)
}

func TestCommandAcceptAndReject(t *testing.T) {
	hub := NewHub(testConfig(), nil, nil, nil)
	sender := newMemorySender()
	conn := hub.Join(sender)
	hub.Advance(time.Now())

	target := hub.CurrentTick() + 1
	hub.HandleMessage(conn, []byte(fmt.Sprintf(`{"type":"input","tick":%d,"seq":7,"dx":1}`, target)))

	acks := sender.byType(t, channel.Input, proto.TypeCommandAck)
	require.Len(t, acks, 1)

	// A command addressed at an already consumed tick is refused.
	hub.HandleMessage(conn, []byte(`{"type":"input","tick":1,"seq":8,"dx":1}`))

	rejects := sender.byType(t, channel.Input, proto.TypeCommandReject)
	require.Len(t, rejects, 1)
	var reject struct {
		Seq    uint32 `json:"seq"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rejects[0], &reject))
	require.Equal(t, uint32(8), reject.Seq)
	require.Equal(t, "stale_tick", reject.Reason)
}

func TestAcceptedCommandMovesEntity(t *testing.T) {
	hub := NewHub(testConfig(), nil, nil, nil)
	sender := newMemorySender()
	conn := hub.Join(sender)
	hub.Advance(time.Now())

	before, ok := hub.State().Entities[conn.Entity]
	require.True(t, ok)

	target := hub.CurrentTick() + 1
	hub.HandleMessage(conn, []byte(fmt.Sprintf(`{"type":"input","tick":%d,"seq":1,"dx":1}`, target)))
	hub.Advance(time.Now())

	after := hub.State().Entities[conn.Entity]
	require.Greater(t, after.X, before.X)
}

func TestChunksStreamAroundEntity(t *testing.T) {
	hub := NewHub(testConfig(), nil, nil, nil)
	sender := newMemorySender()
	hub.Join(sender)

	hub.Advance(time.Now())

	chunks := sender.byType(t, channel.ChunkStream, proto.TypeChunk)
	require.Len(t, chunks, 1)
	var frame struct {
		Encoding string `json:"encoding"`
		Data     []byte `json:"data"`
	}
	require.NoError(t, json.Unmarshal(chunks[0], &frame))
	require.Equal(t, "palette-rle-zstd", frame.Encoding)
	require.NotEmpty(t, frame.Data)

	// Radius zero means one chunk total; nothing further streams.
	hub.Advance(time.Now())
	require.Len(t, sender.byType(t, channel.ChunkStream, proto.TypeChunk), 1)
}

func TestBackloggedChunkStreamDefersWithoutBlocking(t *testing.T) {
	hub := NewHub(testConfig(), nil, nil, nil)
	sender := newMemorySender()
	conn := hub.Join(sender)
	sender.setBacklogged(true)

	now := time.Now()
	done := make(chan struct{})
	go func() {
		hub.Advance(now)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not complete with a backlogged chunk stream")
	}

	// The backed-up client keeps its session and loses nothing: the chunk
	// is handed back to the streamer instead of stalling the tick.
	require.Empty(t, sender.byType(t, channel.ChunkStream, proto.TypeChunk))
	require.False(t, sender.isClosed())
	require.Contains(t, hub.State().Entities, conn.Entity)

	sender.setBacklogged(false)
	hub.Advance(now)
	require.Len(t, sender.byType(t, channel.ChunkStream, proto.TypeChunk), 1)
}

func TestHeartbeatTimeoutDisconnects(t *testing.T) {
	hub := NewHub(testConfig(), nil, nil, nil)
	sender := newMemorySender()
	conn := hub.Join(sender)

	now := time.Now()
	hub.Advance(now)
	require.Contains(t, hub.State().Entities, conn.Entity)

	hub.Advance(now.Add(disconnectAfter + time.Second))

	require.True(t, sender.isClosed())
	require.NotContains(t, hub.State().Entities, conn.Entity)
	require.Empty(t, hub.DiagnosticsSnapshot())
}

func TestHeartbeatReplyCarriesRTT(t *testing.T) {
	hub := NewHub(testConfig(), nil, nil, nil)
	sender := newMemorySender()
	conn := hub.Join(sender)

	sent := time.Now().Add(-40 * time.Millisecond).UnixMilli()
	hub.HandleMessage(conn, []byte(fmt.Sprintf(`{"type":"heartbeat","sentAt":%d}`, sent)))

	replies := sender.byType(t, channel.Diagnostics, proto.TypeHeartbeatAck)
	require.Len(t, replies, 1)
	var reply struct {
		RTT int64 `json:"rtt"`
	}
	require.NoError(t, json.Unmarshal(replies[0], &reply))
	require.GreaterOrEqual(t, reply.RTT, int64(40))
}

func TestChatFansOutToAllConnections(t *testing.T) {
	hub := NewHub(testConfig(), nil, nil, nil)
	a, b := newMemorySender(), newMemorySender()
	connA := hub.Join(a)
	hub.Join(b)
	hub.Advance(time.Now())

	hub.HandleMessage(connA, []byte(`{"type":"chat","text":" hello "}`))

	for _, sender := range []*memorySender{a, b} {
		events := sender.byType(t, channel.Chat, proto.TypeChatEvent)
		require.Len(t, events, 1)
		var event struct {
			From uint64 `json:"from"`
			Text string `json:"text"`
		}
		require.NoError(t, json.Unmarshal(events[0], &event))
		require.Equal(t, uint64(connA.Entity), event.From)
		require.Equal(t, "hello", event.Text)
	}
}

func TestKeyframeIntervalRebasesChain(t *testing.T) {
	cfg := testConfig()
	cfg.Journal.KeyframeInterval = 3
	hub := NewHub(cfg, nil, nil, nil)
	sender := newMemorySender()
	conn := hub.Join(sender)

	now := time.Now()
	hub.Advance(now) // tick 1: keyframe (never acked)
	hub.HandleMessage(conn, []byte(`{"type":"ack","ack":1}`))
	hub.Advance(now) // tick 2: delta
	hub.Advance(now) // tick 3: interval keyframe

	require.Len(t, sender.byType(t, channel.EntityDelta, proto.TypeKeyframe), 2)
	require.Len(t, sender.byType(t, channel.EntityDelta, proto.TypeDelta), 1)
}

func TestChatTruncatesOnRuneBoundary(t *testing.T) {
	hub := NewHub(testConfig(), nil, nil, nil)
	sender := newMemorySender()
	conn := hub.Join(sender)
	hub.Advance(time.Now())

	long := strings.Repeat("é", maxChatLength+50)
	hub.HandleMessage(conn, []byte(fmt.Sprintf(`{"type":"chat","text":%q}`, long)))

	events := sender.byType(t, channel.Chat, proto.TypeChatEvent)
	require.Len(t, events, 1)
	var event struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(events[0], &event))
	require.True(t, utf8.ValidString(event.Text), "truncation must not split a rune")
	require.Equal(t, maxChatLength, utf8.RuneCountInString(event.Text))
}

func TestHeartbeatIgnoresImplausibleClientClock(t *testing.T) {
	hub := NewHub(testConfig(), nil, nil, nil)
	sender := newMemorySender()
	conn := hub.Join(sender)

	// A client clock an hour behind would suggest an hour of RTT; the
	// reading is discarded rather than recorded.
	skewed := time.Now().Add(-time.Hour).UnixMilli()
	hub.HandleMessage(conn, []byte(fmt.Sprintf(`{"type":"heartbeat","sentAt":%d}`, skewed)))

	replies := sender.byType(t, channel.Diagnostics, proto.TypeHeartbeatAck)
	require.Len(t, replies, 1)
	var reply struct {
		RTT int64 `json:"rtt"`
	}
	require.NoError(t, json.Unmarshal(replies[0], &reply))
	require.Zero(t, reply.RTT)
}
