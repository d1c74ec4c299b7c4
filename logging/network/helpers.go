// Package network publishes the network-side structured events.
package network

import (
	"context"

	"voxelrift/logging"
)

const (
	// EventAckAdvanced is emitted when a client acknowledges a newer tick.
	EventAckAdvanced logging.EventType = "network.ack_advanced"
	// EventAckRegression is emitted when a client reports an older tick
	// than previously acknowledged.
	EventAckRegression logging.EventType = "network.ack_regression"
	// EventCommandRejected is emitted when intake refuses a command.
	EventCommandRejected logging.EventType = "network.command_rejected"
	// EventResyncForced is emitted when a connection falls back to a full
	// keyframe.
	EventResyncForced logging.EventType = "network.resync_forced"
	// EventFrameDropped is emitted when an inbound frame fails decoding.
	EventFrameDropped logging.EventType = "network.frame_dropped"
)

// AckPayload captures acknowledgement progression details.
type AckPayload struct {
	Previous uint64 `json:"previous"`
	Ack      uint64 `json:"ack"`
}

// AckAdvanced publishes a debug event when an acknowledgement advances.
func AckAdvanced(ctx context.Context, pub logging.Publisher, tick uint64, conn logging.SubjectRef, payload AckPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAckAdvanced,
		Tick:     tick,
		Subject:  conn,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// AckRegression publishes a warning when an acknowledgement moves backwards.
func AckRegression(ctx context.Context, pub logging.Publisher, tick uint64, conn logging.SubjectRef, payload AckPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAckRegression,
		Tick:     tick,
		Subject:  conn,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// RejectPayload captures why a command was refused.
type RejectPayload struct {
	Seq    uint32 `json:"seq"`
	Reason string `json:"reason"`
}

// CommandRejected publishes an informational event for a refused command.
func CommandRejected(ctx context.Context, pub logging.Publisher, tick uint64, conn logging.SubjectRef, payload RejectPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommandRejected,
		Tick:     tick,
		Subject:  conn,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// ResyncPayload captures why a full keyframe was forced.
type ResyncPayload struct {
	Reason string `json:"reason"`
	Count  uint64 `json:"count"`
}

// ResyncForced publishes a warning when delta streaming degrades to a full
// keyframe for a connection.
func ResyncForced(ctx context.Context, pub logging.Publisher, tick uint64, conn logging.SubjectRef, payload ResyncPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventResyncForced,
		Tick:     tick,
		Subject:  conn,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// FrameDropped publishes a debug event for an undecodable inbound frame.
func FrameDropped(ctx context.Context, pub logging.Publisher, conn logging.SubjectRef, reason string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFrameDropped,
		Subject:  conn,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
	}.WithExtra("reason", reason))
}
