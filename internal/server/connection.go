package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxelrift/internal/net/channel"
	"voxelrift/internal/sim"
	"voxelrift/internal/snapshot"
	"voxelrift/internal/world"
)

// ErrBackpressure reports that a reliable lane could not accept a frame
// without blocking. Loop-goroutine callers defer the frame instead of
// waiting on one client's backlog.
var ErrBackpressure = errors.New("send backlog full")

// Sender delivers one encoded frame to a client on a logical channel. The
// implementation decides delivery per lane; unreliable lanes are allowed to
// drop frames when the client is backed up. Send may block on reliable
// lanes, so the tick loop uses TrySend, which returns ErrBackpressure
// instead of waiting.
type Sender interface {
	Send(ch channel.ID, frame []byte) error
	TrySend(ch channel.ID, frame []byte) error
	Close() error
}

// Connection is the server-side state for one connected client: its identity,
// the ack policy that governs delta versus keyframe broadcast, and the chunk
// streamer tracking which terrain the client holds.
type Connection struct {
	ID     uuid.UUID
	Entity sim.EntityID

	sender   Sender
	policy   *snapshot.AckPolicy
	streamer *world.Streamer

	// Broadcast chain state. Touched only on the loop goroutine once the
	// connection is registered.
	synced       bool
	lastSentTick sim.Tick

	mu            sync.Mutex
	lastHeartbeat time.Time
	lastRTT       time.Duration
}

func newConnection(entity sim.EntityID, sender Sender, policy *snapshot.AckPolicy, streamer *world.Streamer, now time.Time) *Connection {
	return &Connection{
		ID:            uuid.New(),
		Entity:        entity,
		sender:        sender,
		policy:        policy,
		streamer:      streamer,
		lastHeartbeat: now,
	}
}

// noteAck records an acknowledged tick and reports the previous one so the
// caller can spot regressions.
func (c *Connection) noteAck(tick sim.Tick, now time.Time) (sim.Tick, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, had := c.policy.AckedTick()
	c.policy.NoteAck(tick, now)
	return prev, had
}

// noteHeartbeat stamps the connection alive and derives the RTT from the
// client's send time when it is plausible.
func (c *Connection) noteHeartbeat(receivedAt time.Time, clientSent int64) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHeartbeat = receivedAt
	if clientSent > 0 {
		clientTime := time.UnixMilli(clientSent)
		if clientTime.After(receivedAt.Add(-5*time.Second)) && clientTime.Before(receivedAt.Add(5*time.Second)) {
			rtt := receivedAt.Sub(clientTime)
			if rtt < 0 {
				rtt = 0
			}
			c.lastRTT = rtt
		}
	}
	return c.lastRTT
}

func (c *Connection) heartbeatAge(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastHeartbeat)
}

// broadcastBase reports the tick to delta against, or false when the next
// frame must be a full keyframe. The policy's liveness check runs here; the
// chain base itself is the last sent tick, not the last acked one.
func (c *Connection) broadcastBase(now time.Time) (sim.Tick, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.synced {
		return 0, false
	}
	if _, ok := c.policy.Base(now); !ok {
		return 0, false
	}
	return c.lastSentTick, true
}

func (c *Connection) noteBaseEvicted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy.NoteBaseEvicted()
}

func (c *Connection) consumeResync() (string, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy.ConsumeResync()
}

func (c *Connection) diagnostics(now time.Time) ConnectionDiagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	acked, _ := c.policy.AckedTick()
	return ConnectionDiagnostics{
		ID:                 c.ID.String(),
		Entity:             uint64(c.Entity),
		AckedTick:          uint64(acked),
		LastSentTick:       uint64(c.lastSentTick),
		RTTMillis:          c.lastRTT.Milliseconds(),
		HeartbeatAgeMillis: now.Sub(c.lastHeartbeat).Milliseconds(),
		PendingChunks:      c.streamer.Pending(),
	}
}

// ConnectionDiagnostics is the per-client block of the diagnostics endpoint.
type ConnectionDiagnostics struct {
	ID                 string `json:"id"`
	Entity             uint64 `json:"entity"`
	AckedTick          uint64 `json:"ackedTick"`
	LastSentTick       uint64 `json:"lastSentTick"`
	RTTMillis          int64  `json:"rttMillis"`
	HeartbeatAgeMillis int64  `json:"heartbeatAgeMillis"`
	PendingChunks      int    `json:"pendingChunks"`
}
