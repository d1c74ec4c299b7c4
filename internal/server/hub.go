// Package server owns the authoritative side of a session: the tick loop,
// command intake, the keyframe journal, and the per-connection broadcast
// pipeline that turns each step into keyframes, deltas, and chunk frames.
package server

import (
	"context"
	"errors"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voxelrift/internal/config"
	"voxelrift/internal/net/channel"
	"voxelrift/internal/net/proto"
	"voxelrift/internal/sim"
	"voxelrift/internal/snapshot"
	"voxelrift/internal/telemetry"
	"voxelrift/internal/world"
	"voxelrift/logging"
	lognet "voxelrift/logging/network"
	logsim "voxelrift/logging/simulation"
)

const (
	disconnectAfter  = 15 * time.Second
	maxChatLength    = 256
	diagnosticsEvery = 120
)

const (
	connectionsMetricKey    = "server_connections"
	broadcastBytesMetricKey = "server_broadcast_bytes_total"
	keyframesSentMetricKey  = "server_keyframes_sent_total"
	deltasSentMetricKey     = "server_deltas_sent_total"
	chunksSentMetricKey     = "server_chunks_sent_total"
)

// RejectUnsupported is returned for inbound frames the intake cannot turn
// into a command.
const RejectUnsupported = "unsupported"

// Hub wires the simulation loop to the connected clients. All world mutation
// happens on the loop goroutine through the Prepare hook; the broadcast fan
// out runs on the same goroutine in AfterStep so every client observes ticks
// in order.
type Hub struct {
	cfg     config.Config
	terrain *world.PerlinProvider
	loop    *sim.Loop
	intake  *sim.CommandBuffer
	journal *snapshot.Journal

	publisher logging.Publisher
	metrics   *logging.Metrics
	logger    telemetry.Logger

	nextEntity atomic.Uint64

	mu     sync.Mutex
	conns  map[uuid.UUID]*Connection
	spawns []sim.EntityID
}

// NewHub constructs a hub from the configuration. Nil publisher, metrics, or
// logger fall back to working defaults so tests can pass only what they
// observe.
func NewHub(cfg config.Config, publisher logging.Publisher, metrics *logging.Metrics, logger telemetry.Logger) *Hub {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	if metrics == nil {
		metrics = logging.NewMetrics()
	}
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	stepCfg := sim.DefaultStepConfig()
	stepCfg.TickRate = cfg.Simulation.TickRate
	if cfg.Simulation.MoveSpeed > 0 {
		stepCfg.MoveSpeed = cfg.Simulation.MoveSpeed
	}

	h := &Hub{
		cfg:       cfg,
		terrain:   world.NewPerlinProvider(cfg.Simulation.Seed),
		intake:    sim.NewCommandBuffer(sim.CommandBufferConfig{MaxTotal: cfg.Intake.MaxTotal, MaxPerTick: cfg.Intake.MaxPerTick, Horizon: sim.Tick(cfg.Intake.Horizon)}, telemetry.WrapMetrics(metrics)),
		journal:   snapshot.NewJournal(cfg.Journal.Capacity, cfg.Journal.MaxAge),
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		conns:     make(map[uuid.UUID]*Connection),
	}
	h.loop = sim.NewLoop(
		sim.NewWorldState(cfg.Simulation.Seed),
		h.terrain,
		stepCfg,
		sim.LoopConfig{TickRate: cfg.Simulation.TickRate, CatchupMaxTicks: cfg.Simulation.CatchupMaxTicks},
		sim.LoopHooks{Collect: h.collect, Prepare: h.prepare, AfterStep: h.publish},
		logger,
		telemetry.WrapMetrics(metrics),
	)
	return h
}

// Run drives the tick loop until the stop channel closes.
func (h *Hub) Run(stop <-chan struct{}) {
	h.loop.Run(stop)
}

// Advance executes one tick synchronously, for replay tooling and tests.
func (h *Hub) Advance(now time.Time) sim.LoopStepResult {
	result := h.loop.Advance(now)
	h.publish(result)
	return result
}

// CurrentTick reports the last completed tick.
func (h *Hub) CurrentTick() sim.Tick { return h.loop.CurrentTick() }

// TickRate reports the configured simulation rate.
func (h *Hub) TickRate() int { return h.cfg.Simulation.TickRate }

// Seed reports the world seed.
func (h *Hub) Seed() string { return h.cfg.Simulation.Seed }

// State returns a deep copy of the authoritative world.
func (h *Hub) State() sim.WorldState { return h.loop.State() }

// Terrain exposes the chunk provider backing the world.
func (h *Hub) Terrain() *world.PerlinProvider { return h.terrain }

// Join registers a new client. The entity spawns on the next tick; the first
// keyframe the connection receives carries its entity id.
func (h *Hub) Join(sender Sender) *Connection {
	entity := sim.EntityID(h.nextEntity.Add(1))
	now := time.Now()
	conn := newConnection(
		entity,
		sender,
		snapshot.NewAckPolicy(h.cfg.Journal.AckTimeout),
		world.NewStreamer(h.cfg.Chunks.Radius),
		now,
	)

	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.spawns = append(h.spawns, entity)
	count := len(h.conns)
	h.mu.Unlock()

	h.metrics.TelemetryStore(connectionsMetricKey, uint64(count))
	h.logger.Printf("[hub] connection %s joined as entity %d", conn.ID, entity)
	return conn
}

// Disconnect removes a connection and despawns its entity on the next tick.
func (h *Hub) Disconnect(id uuid.UUID) {
	h.mu.Lock()
	conn, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	count := len(h.conns)
	h.mu.Unlock()
	if !ok {
		return
	}

	h.metrics.TelemetryStore(connectionsMetricKey, uint64(count))
	h.logger.Printf("[hub] connection %s left, entity %d despawning", conn.ID, conn.Entity)
	conn.sender.Close()
}

// HandleMessage routes one inbound frame from the given connection. Replies
// go back through the connection's sender; a failed reply disconnects.
func (h *Hub) HandleMessage(conn *Connection, payload []byte) {
	now := time.Now()
	msg, err := proto.DecodeClientMessage(payload)
	if err != nil {
		lognet.FrameDropped(context.Background(), h.publisher, h.subjectFor(conn), err.Error())
		return
	}

	switch msg.Type {
	case proto.TypeInput, proto.TypeAction:
		h.handleCommand(conn, msg, now)
	case proto.TypeAck:
		if msg.Ack != nil {
			h.recordAck(conn, sim.Tick(*msg.Ack), now)
		}
	case proto.TypeHeartbeat:
		rtt := conn.noteHeartbeat(now, msg.SentAt)
		frame, err := proto.EncodeHeartbeat(proto.Heartbeat{
			ServerTime: now.UnixMilli(),
			ClientTime: msg.SentAt,
			RTTMillis:  rtt.Milliseconds(),
			Tick:       h.loop.CurrentTick(),
		})
		if err == nil {
			h.sendOrDrop(conn, channel.Diagnostics, frame)
		}
	case proto.TypeChat:
		h.handleChat(conn, msg.Text)
	case proto.TypeChunkRequest:
		h.sendChunk(conn, world.ChunkPos{X: msg.ChunkX, Z: msg.ChunkZ}, h.loop.CurrentTick())
	default:
		lognet.FrameDropped(context.Background(), h.publisher, h.subjectFor(conn), "unknown type "+msg.Type)
	}
}

func (h *Hub) handleCommand(conn *Connection, msg proto.ClientMessage, now time.Time) {
	if msg.LastAckTick > 0 {
		h.recordAck(conn, sim.Tick(msg.LastAckTick), now)
	}

	cmd, ok := proto.ClientCommand(msg)
	if !ok {
		h.rejectCommand(conn, msg.Seq, RejectUnsupported, false)
		return
	}
	cmd.Owner = conn.Entity

	current := h.loop.CurrentTick()
	accepted, reason := h.intake.Push(cmd, current)
	if !accepted {
		retry := reason == sim.RejectTickFull || reason == sim.RejectBufferFull
		h.rejectCommand(conn, msg.Seq, reason, retry)
		return
	}
	frame, err := proto.EncodeCommandAck(proto.CommandAck{Seq: msg.Seq, Tick: cmd.Tick})
	if err == nil {
		h.sendOrDrop(conn, channel.Input, frame)
	}
}

func (h *Hub) rejectCommand(conn *Connection, seq uint32, reason string, retry bool) {
	lognet.CommandRejected(context.Background(), h.publisher, uint64(h.loop.CurrentTick()), h.subjectFor(conn), lognet.RejectPayload{Seq: seq, Reason: reason})
	frame, err := proto.EncodeCommandReject(proto.CommandReject{Seq: seq, Reason: reason, Retry: retry, Tick: h.loop.CurrentTick()})
	if err == nil {
		h.sendOrDrop(conn, channel.Input, frame)
	}
}

func (h *Hub) recordAck(conn *Connection, tick sim.Tick, now time.Time) {
	prev, had := conn.noteAck(tick, now)
	subject := h.subjectFor(conn)
	payload := lognet.AckPayload{Previous: uint64(prev), Ack: uint64(tick)}
	if had && tick < prev {
		lognet.AckRegression(context.Background(), h.publisher, uint64(h.loop.CurrentTick()), subject, payload)
		return
	}
	lognet.AckAdvanced(context.Background(), h.publisher, uint64(h.loop.CurrentTick()), subject, payload)
}

func (h *Hub) handleChat(conn *Connection, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if runes := []rune(text); len(runes) > maxChatLength {
		text = string(runes[:maxChatLength])
	}
	frame, err := proto.EncodeChatEvent(proto.ChatEvent{
		From: uint64(conn.Entity),
		Text: text,
		Tick: h.loop.CurrentTick(),
	})
	if err != nil {
		return
	}
	for _, target := range h.connections() {
		h.sendOrPrune(target, channel.Chat, frame)
	}
}

// collect feeds the loop the commands staged for the tick.
func (h *Hub) collect(tick sim.Tick) []sim.Command {
	return h.intake.DrainForTick(tick)
}

// prepare applies joins, leaves, and heartbeat expiry on the loop goroutine
// before the step runs, so spawn and despawn happen at tick boundaries.
func (h *Hub) prepare(ctx sim.LoopTickContext, state *sim.WorldState) {
	h.mu.Lock()
	spawns := h.spawns
	h.spawns = nil

	var stale []*Connection
	live := make(map[sim.EntityID]struct{}, len(h.conns))
	for id, conn := range h.conns {
		if conn.heartbeatAge(ctx.Now) > disconnectAfter {
			stale = append(stale, conn)
			delete(h.conns, id)
			continue
		}
		live[conn.Entity] = struct{}{}
	}
	h.mu.Unlock()

	for _, entity := range spawns {
		if _, ok := state.Entities[entity]; ok {
			continue
		}
		state.Entities[entity] = sim.SpawnEntity(entity, h.terrain)
		logsim.EntitySpawned(context.Background(), h.publisher, uint64(ctx.Tick), logging.SubjectRef{ID: entityID(entity), Kind: logging.SubjectKindEntity})
	}

	for _, conn := range stale {
		h.logger.Printf("[hub] disconnecting %s after heartbeat timeout", conn.ID)
		conn.sender.Close()
	}

	for entity := range state.Entities {
		if _, ok := live[entity]; ok {
			continue
		}
		stillSpawning := false
		for _, pending := range spawns {
			if pending == entity {
				stillSpawning = true
				break
			}
		}
		if stillSpawning {
			continue
		}
		delete(state.Entities, entity)
		logsim.EntityRemoved(context.Background(), h.publisher, uint64(ctx.Tick), logging.SubjectRef{ID: entityID(entity), Kind: logging.SubjectKindEntity})
	}
}

// publish fans the finished tick out to every connection: a journal record,
// then per connection either a delta against its chain base or a full
// keyframe, then the next batch of terrain chunks.
func (h *Hub) publish(result sim.LoopStepResult) {
	frame, record := h.journal.Record(result.State)

	expired, counted := 0, 0
	for _, evicted := range record.Evicted {
		switch evicted.Reason {
		case snapshot.EvictExpired:
			expired++
		case snapshot.EvictCount:
			counted++
		}
	}
	logsim.KeyframeRecorded(context.Background(), h.publisher, uint64(frame.Tick), logsim.KeyframePayload{
		Sequence:       frame.Sequence,
		EvictedExpired: expired,
		EvictedCount:   counted,
	})

	now := result.Now
	for _, conn := range h.connections() {
		entity, present := frame.Entity(conn.Entity)
		if !present {
			// Spawn still pending; nothing to broadcast yet.
			continue
		}
		if !h.broadcastEntities(conn, frame, now) {
			continue
		}
		h.streamChunks(conn, entity, frame.Tick)
	}

	if uint64(frame.Tick)%diagnosticsEvery == 0 {
		h.broadcastDiagnostics(frame.Tick)
	}
	if result.Duration > result.Budget && result.Budget > 0 {
		logsim.TickOverrun(context.Background(), h.publisher, uint64(frame.Tick), logsim.OverrunPayload{
			Duration: result.Duration,
			Budget:   result.Budget,
			Catchup:  result.CatchupSteps,
		})
	}
}

// broadcastEntities sends the entity lane frame for this tick. It reports
// false when the connection failed and was pruned.
func (h *Hub) broadcastEntities(conn *Connection, frame snapshot.Snapshot, now time.Time) bool {
	baseTick, useDelta := conn.broadcastBase(now)
	var baseSnap snapshot.Snapshot
	if useDelta {
		if uint64(frame.Tick)%uint64(h.cfg.Journal.KeyframeInterval) == 0 {
			useDelta = false
		}
	}
	if useDelta {
		located, ok := h.journal.ByTick(baseTick)
		if !ok {
			conn.noteBaseEvicted()
			useDelta = false
		} else {
			baseSnap = located
		}
	}

	if !useDelta {
		reason := ""
		if cause, count, forced := conn.consumeResync(); forced {
			reason = cause
			if conn.synced {
				lognet.ResyncForced(context.Background(), h.publisher, uint64(frame.Tick), h.subjectFor(conn), lognet.ResyncPayload{Reason: cause, Count: count})
			}
		}
		data, err := proto.EncodeKeyframe(frame, proto.KeyframeConfig{
			Seed:     h.cfg.Simulation.Seed,
			TickRate: h.cfg.Simulation.TickRate,
			SelfID:   uint64(conn.Entity),
		}, reason)
		if err != nil {
			h.logger.Printf("[hub] keyframe encode failed: %v", err)
			return true
		}
		if !h.sendOrPrune(conn, channel.EntityDelta, data) {
			return false
		}
		h.metrics.TelemetryAdd(keyframesSentMetricKey, 1)
		h.metrics.TelemetryAdd(broadcastBytesMetricKey, uint64(len(data)))
		conn.synced = true
		conn.lastSentTick = frame.Tick
		return true
	}

	patches := snapshot.Diff(baseSnap, frame)
	data, err := proto.EncodeDelta(frame.Tick, baseTick, patches)
	if err != nil {
		h.logger.Printf("[hub] delta encode failed: %v", err)
		return true
	}
	if !h.sendOrPrune(conn, channel.EntityDelta, data) {
		return false
	}
	h.metrics.TelemetryAdd(deltasSentMetricKey, 1)
	h.metrics.TelemetryAdd(broadcastBytesMetricKey, uint64(len(data)))
	conn.lastSentTick = frame.Tick
	return true
}

// streamChunks advances the per-connection terrain stream around the entity.
func (h *Hub) streamChunks(conn *Connection, entity sim.EntityState, tick sim.Tick) {
	conn.streamer.SetFocus(world.ChunkPos{X: chunkCoord(entity.X), Z: chunkCoord(entity.Z)})
	for _, pos := range conn.streamer.Next(h.cfg.Chunks.SendsPerTick) {
		if !h.sendChunk(conn, pos, tick) {
			return
		}
	}
}

func (h *Hub) sendChunk(conn *Connection, pos world.ChunkPos, tick sim.Tick) bool {
	chunk, err := h.terrain.ChunkAt(pos)
	if err != nil {
		h.logger.Printf("[hub] chunk %v generation failed: %v", pos, err)
		return true
	}
	payload, err := world.EncodeChunk(chunk)
	if err != nil {
		h.logger.Printf("[hub] chunk %v encode failed: %v", pos, err)
		return true
	}
	data, err := proto.EncodeChunk(tick, pos.X, pos.Z, world.Encoding, payload)
	if err != nil {
		return true
	}
	// The loop goroutine must not wait on one client's write backlog. A
	// backed-up stream gives the chunk back to the streamer and retries on
	// a later tick.
	if err := conn.sender.TrySend(channel.ChunkStream, data); err != nil {
		if errors.Is(err, ErrBackpressure) {
			conn.streamer.Invalidate(pos)
			return false
		}
		h.logger.Printf("[hub] send to %s failed on %s: %v", conn.ID, channel.ChunkStream, err)
		h.Disconnect(conn.ID)
		return false
	}
	h.metrics.TelemetryAdd(chunksSentMetricKey, 1)
	return true
}

func (h *Hub) broadcastDiagnostics(tick sim.Tick) {
	frame, err := proto.EncodeDiagnostics(proto.Diagnostics{Tick: tick, Counters: h.metrics.Snapshot()})
	if err != nil {
		return
	}
	for _, conn := range h.connections() {
		h.sendOrDrop(conn, channel.Diagnostics, frame)
	}
}

// DiagnosticsSnapshot reports per-connection health for the HTTP endpoint.
func (h *Hub) DiagnosticsSnapshot() []ConnectionDiagnostics {
	now := time.Now()
	conns := h.connections()
	out := make([]ConnectionDiagnostics, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn.diagnostics(now))
	}
	return out
}

// TelemetrySnapshot copies the current counter values.
func (h *Hub) TelemetrySnapshot() map[string]uint64 {
	return h.metrics.Snapshot()
}

func (h *Hub) connections() []*Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	return conns
}

// sendOrPrune delivers a frame and disconnects the client on failure.
func (h *Hub) sendOrPrune(conn *Connection, ch channel.ID, frame []byte) bool {
	if err := conn.sender.Send(ch, frame); err != nil {
		h.logger.Printf("[hub] send to %s failed on %s: %v", conn.ID, ch, err)
		h.Disconnect(conn.ID)
		return false
	}
	return true
}

// sendOrDrop delivers a frame and only logs failure. Used for replies where
// the read loop owns the disconnect.
func (h *Hub) sendOrDrop(conn *Connection, ch channel.ID, frame []byte) {
	if err := conn.sender.Send(ch, frame); err != nil {
		h.logger.Printf("[hub] send to %s failed on %s: %v", conn.ID, ch, err)
	}
}

func (h *Hub) subjectFor(conn *Connection) logging.SubjectRef {
	return logging.SubjectRef{ID: conn.ID.String(), Kind: logging.SubjectKindConnection}
}

// chunkCoord maps a world coordinate to its chunk index, correct for
// negative coordinates.
func chunkCoord(v float64) int {
	return int(math.Floor(v / world.ChunkSize))
}

func entityID(entity sim.EntityID) string {
	return "entity-" + strconv.FormatUint(uint64(entity), 10)
}
