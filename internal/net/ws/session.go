// Package ws carries the wire protocol over websocket connections. A session
// owns the single writer goroutine gorilla requires and applies the channel
// delivery rules: reliable lanes block the read-side producer, freshness
// filtered lanes drop when the client is backed up, and the tick loop sends
// through TrySend so no client backlog can stall it.
package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelrift/internal/net/channel"
	"voxelrift/internal/server"
	"voxelrift/internal/telemetry"
)

const (
	writeWait        = 10 * time.Second
	defaultQueueSize = 256
)

// ErrSessionClosed is returned by Send after the session shuts down.
var ErrSessionClosed = errors.New("session closed")

type outFrame struct {
	ch   channel.ID
	data []byte
}

// Session wraps one websocket connection behind the server's Sender
// interface.
type Session struct {
	conn   *websocket.Conn
	logger telemetry.Logger

	queue   chan outFrame
	closing chan struct{}
	once    sync.Once

	dropped atomic.Uint64
}

// NewSession wraps an upgraded connection. The caller must start Run before
// frames flow.
func NewSession(conn *websocket.Conn, logger telemetry.Logger) *Session {
	return &Session{
		conn:    conn,
		logger:  logger,
		queue:   make(chan outFrame, defaultQueueSize),
		closing: make(chan struct{}),
	}
}

// Send queues one frame for delivery. Reliable lanes block until the writer
// drains; other lanes drop the frame when the queue is full, since a newer
// frame for those lanes supersedes it anyway.
func (s *Session) Send(ch channel.ID, data []byte) error {
	select {
	case <-s.closing:
		return ErrSessionClosed
	default:
	}

	f := outFrame{ch: ch, data: data}
	if profile, ok := channel.ProfileFor(ch); ok && profile.Reliable {
		select {
		case s.queue <- f:
			return nil
		case <-s.closing:
			return ErrSessionClosed
		}
	}
	select {
	case s.queue <- f:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// TrySend queues one frame without ever blocking. A full queue yields
// server.ErrBackpressure on reliable lanes and a counted drop on the rest.
func (s *Session) TrySend(ch channel.ID, data []byte) error {
	select {
	case <-s.closing:
		return ErrSessionClosed
	default:
	}

	select {
	case s.queue <- outFrame{ch: ch, data: data}:
		return nil
	default:
	}
	if profile, ok := channel.ProfileFor(ch); ok && profile.Reliable {
		return server.ErrBackpressure
	}
	s.dropped.Add(1)
	return nil
}

// Run is the write pump. It returns when the session closes or a write
// fails; the caller owns the corresponding hub disconnect.
func (s *Session) Run() {
	for {
		select {
		case <-s.closing:
			return
		case f := <-s.queue:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
				if s.logger != nil {
					s.logger.Printf("[ws] write failed on %s: %v", f.ch, err)
				}
				s.Close()
				return
			}
		}
	}
}

// Dropped reports how many frames were discarded on lossy lanes.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// Close shuts the session down. Safe to call more than once.
func (s *Session) Close() error {
	s.once.Do(func() {
		close(s.closing)
		if s.conn != nil {
			s.conn.Close()
		}
	})
	return nil
}
