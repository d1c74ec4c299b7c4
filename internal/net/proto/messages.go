// Package proto defines the JSON wire frames exchanged over the websocket.
// Every frame carries the protocol version, the logical channel it rides on,
// and the tick it refers to, so delivery rules can be applied from the
// envelope alone.
package proto

import (
	"encoding/json"
	"fmt"

	"voxelrift/internal/net/channel"
	"voxelrift/internal/sim"
	"voxelrift/internal/snapshot"
)

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Client message type identifiers.
const (
	TypeInput        = "input"
	TypeAction       = "action"
	TypeAck          = "ack"
	TypeHeartbeat    = "heartbeat"
	TypeChat         = "chat"
	TypeChunkRequest = "chunkRequest"
)

// Server message type identifiers.
const (
	TypeKeyframe      = "keyframe"
	TypeDelta         = "delta"
	TypeCommandAck    = "commandAck"
	TypeCommandReject = "commandReject"
	TypeHeartbeatAck  = "heartbeatAck"
	TypeChunk         = "chunk"
	TypeChatEvent     = "chatEvent"
	TypeDiagnostics   = "diagnostics"
)

// ClientMessage captures an inbound websocket frame from the client.
type ClientMessage struct {
	Ver     int        `json:"ver,omitempty"`
	Type    string     `json:"type"`
	Channel channel.ID `json:"channel"`

	// Input bundle fields.
	Tick        uint64  `json:"tick,omitempty"`
	Seq         uint32  `json:"seq,omitempty"`
	LastAckTick uint64  `json:"lastAckTick,omitempty"`
	DX          float64 `json:"dx,omitempty"`
	DZ          float64 `json:"dz,omitempty"`
	Jump        bool    `json:"jump,omitempty"`
	Yaw         float64 `json:"yaw,omitempty"`
	Action      string  `json:"action,omitempty"`
	X           int     `json:"x,omitempty"`
	Y           int     `json:"y,omitempty"`
	Z           int     `json:"z,omitempty"`

	// Keyframe acknowledgement.
	Ack *uint64 `json:"ack,omitempty"`

	// Heartbeat echo.
	SentAt int64 `json:"sentAt,omitempty"`

	// Chat.
	Text string `json:"text,omitempty"`

	// Chunk request coordinates.
	ChunkX int `json:"chunkX,omitempty"`
	ChunkZ int `json:"chunkZ,omitempty"`
}

// DecodeClientMessage converts a raw websocket payload into a structured
// message, rejecting protocol versions the server does not speak.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// ClientCommand converts an inbound message into a simulation command. Owner
// is populated by the hub when the command is accepted.
func ClientCommand(msg ClientMessage) (sim.Command, bool) {
	switch msg.Type {
	case TypeInput:
		return sim.Command{
			Tick:           sim.Tick(msg.Tick),
			Sequence:       msg.Seq,
			Type:           sim.CommandMove,
			Move:           &sim.MoveIntent{DX: msg.DX, DZ: msg.DZ, Jump: msg.Jump, Yaw: msg.Yaw},
			ClientSendTick: sim.Tick(msg.LastAckTick),
		}, true
	case TypeAction:
		if msg.Action == "" {
			return sim.Command{}, false
		}
		return sim.Command{
			Tick:           sim.Tick(msg.Tick),
			Sequence:       msg.Seq,
			Type:           sim.CommandAction,
			Action:         &sim.ActionIntent{Name: msg.Action, X: msg.X, Y: msg.Y, Z: msg.Z},
			ClientSendTick: sim.Tick(msg.LastAckTick),
		}, true
	default:
		return sim.Command{}, false
	}
}

// envelope is the common header present on every server frame.
type envelope struct {
	Ver     int        `json:"ver"`
	Type    string     `json:"type"`
	Channel channel.ID `json:"channel"`
	Tick    uint64     `json:"tick,omitempty"`
}

// KeyframeMessage carries a full snapshot on the entity delta lane.
type KeyframeMessage struct {
	envelope
	Sequence uint64            `json:"sequence"`
	Resync   string            `json:"resync,omitempty"`
	Config   KeyframeConfig    `json:"config"`
	Entities []sim.EntityState `json:"entities,omitempty"`
}

// KeyframeConfig mirrors the immutable world parameters into each keyframe so
// a client can rehydrate without a separate handshake.
type KeyframeConfig struct {
	Seed     string `json:"seed"`
	TickRate int    `json:"tickRate"`
	SelfID   uint64 `json:"selfId,omitempty"`
}

// EncodeKeyframe renders a keyframe frame.
func EncodeKeyframe(snap snapshot.Snapshot, cfg KeyframeConfig, resyncReason string) ([]byte, error) {
	return json.Marshal(KeyframeMessage{
		envelope: envelope{Ver: Version, Type: TypeKeyframe, Channel: channel.EntityDelta, Tick: uint64(snap.Tick)},
		Sequence: snap.Sequence,
		Resync:   resyncReason,
		Config:   cfg,
		Entities: snap.Entities,
	})
}

// WirePatch is the patch shape on the wire. The payload stays raw until the
// kind is known.
type WirePatch struct {
	Kind     snapshot.PatchKind `json:"kind"`
	EntityID uint64             `json:"entityId"`
	Payload  json.RawMessage    `json:"payload,omitempty"`
}

// DeltaMessage carries patches against an acked base tick.
type DeltaMessage struct {
	envelope
	BaseTick uint64      `json:"baseTick"`
	Patches  []WirePatch `json:"patches,omitempty"`
}

// EncodeDelta renders a delta frame with patches against baseTick.
func EncodeDelta(tick sim.Tick, baseTick sim.Tick, patches []snapshot.Patch) ([]byte, error) {
	wire := make([]WirePatch, 0, len(patches))
	for _, patch := range patches {
		wp := WirePatch{Kind: patch.Kind, EntityID: uint64(patch.EntityID)}
		if patch.Payload != nil {
			encoded, err := json.Marshal(patch.Payload)
			if err != nil {
				return nil, fmt.Errorf("encode patch payload %s: %w", patch.Kind, err)
			}
			wp.Payload = encoded
		}
		wire = append(wire, wp)
	}
	return json.Marshal(DeltaMessage{
		envelope: envelope{Ver: Version, Type: TypeDelta, Channel: channel.EntityDelta, Tick: uint64(tick)},
		BaseTick: uint64(baseTick),
		Patches:  wire,
	})
}

// DecodePatches re-types wire patches into snapshot patches.
func DecodePatches(wire []WirePatch) ([]snapshot.Patch, error) {
	patches := make([]snapshot.Patch, 0, len(wire))
	for _, wp := range wire {
		patch := snapshot.Patch{Kind: wp.Kind, EntityID: sim.EntityID(wp.EntityID)}
		if len(wp.Payload) > 0 {
			payload, err := decodePatchPayload(wp.Kind, wp.Payload)
			if err != nil {
				return nil, err
			}
			patch.Payload = payload
		}
		patches = append(patches, patch)
	}
	return patches, nil
}

func decodePatchPayload(kind snapshot.PatchKind, raw json.RawMessage) (any, error) {
	switch kind {
	case snapshot.PatchEntitySpawned:
		var payload snapshot.SpawnPayload
		err := json.Unmarshal(raw, &payload)
		return payload, err
	case snapshot.PatchEntityPos:
		var payload snapshot.PosPayload
		err := json.Unmarshal(raw, &payload)
		return payload, err
	case snapshot.PatchEntityVel:
		var payload snapshot.VelPayload
		err := json.Unmarshal(raw, &payload)
		return payload, err
	case snapshot.PatchEntityYaw:
		var payload snapshot.YawPayload
		err := json.Unmarshal(raw, &payload)
		return payload, err
	case snapshot.PatchEntityIntent:
		var payload snapshot.IntentPayload
		err := json.Unmarshal(raw, &payload)
		return payload, err
	case snapshot.PatchEntityHealth:
		var payload snapshot.HealthPayload
		err := json.Unmarshal(raw, &payload)
		return payload, err
	case snapshot.PatchEntityHunger:
		var payload snapshot.HungerPayload
		err := json.Unmarshal(raw, &payload)
		return payload, err
	default:
		return nil, fmt.Errorf("unknown patch kind %q", kind)
	}
}

// CommandAck acknowledges an accepted command.
type CommandAck struct {
	Seq  uint32
	Tick sim.Tick
}

// EncodeCommandAck renders a command acknowledgement.
func EncodeCommandAck(msg CommandAck) ([]byte, error) {
	frame := struct {
		envelope
		Seq uint32 `json:"seq"`
	}{
		envelope: envelope{Ver: Version, Type: TypeCommandAck, Channel: channel.Input, Tick: uint64(msg.Tick)},
		Seq:      msg.Seq,
	}
	return json.Marshal(frame)
}

// CommandReject notifies the client that a command was refused.
type CommandReject struct {
	Seq    uint32
	Reason string
	Retry  bool
	Tick   sim.Tick
}

// EncodeCommandReject renders a command rejection.
func EncodeCommandReject(msg CommandReject) ([]byte, error) {
	frame := struct {
		envelope
		Seq    uint32 `json:"seq"`
		Reason string `json:"reason"`
		Retry  bool   `json:"retry,omitempty"`
	}{
		envelope: envelope{Ver: Version, Type: TypeCommandReject, Channel: channel.Input, Tick: uint64(msg.Tick)},
		Seq:      msg.Seq,
		Reason:   msg.Reason,
		Retry:    msg.Retry,
	}
	return json.Marshal(frame)
}

// Heartbeat echoes timing metadata back to the client.
type Heartbeat struct {
	ServerTime int64
	ClientTime int64
	RTTMillis  int64
	Tick       sim.Tick
}

// EncodeHeartbeat renders a heartbeat acknowledgement.
func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	frame := struct {
		envelope
		ServerTime int64 `json:"serverTime"`
		ClientTime int64 `json:"clientTime,omitempty"`
		RTT        int64 `json:"rtt,omitempty"`
	}{
		envelope:   envelope{Ver: Version, Type: TypeHeartbeatAck, Channel: channel.Diagnostics, Tick: uint64(msg.Tick)},
		ServerTime: msg.ServerTime,
		ClientTime: msg.ClientTime,
		RTT:        msg.RTTMillis,
	}
	return json.Marshal(frame)
}

// ChunkMessage carries one encoded terrain chunk on the reliable chunk lane.
type ChunkMessage struct {
	envelope
	ChunkX   int    `json:"chunkX"`
	ChunkZ   int    `json:"chunkZ"`
	Encoding string `json:"encoding"`
	Data     []byte `json:"data"`
}

// EncodeChunk renders a chunk frame. Data is the chunk codec output and is
// base64-coded by encoding/json.
func EncodeChunk(tick sim.Tick, chunkX, chunkZ int, encoding string, data []byte) ([]byte, error) {
	return json.Marshal(ChunkMessage{
		envelope: envelope{Ver: Version, Type: TypeChunk, Channel: channel.ChunkStream, Tick: uint64(tick)},
		ChunkX:   chunkX,
		ChunkZ:   chunkZ,
		Encoding: encoding,
		Data:     data,
	})
}

// ChatEvent broadcasts a chat line.
type ChatEvent struct {
	From uint64
	Name string
	Text string
	Tick sim.Tick
}

// EncodeChatEvent renders a chat frame.
func EncodeChatEvent(msg ChatEvent) ([]byte, error) {
	frame := struct {
		envelope
		From uint64 `json:"from"`
		Name string `json:"name,omitempty"`
		Text string `json:"text"`
	}{
		envelope: envelope{Ver: Version, Type: TypeChatEvent, Channel: channel.Chat, Tick: uint64(msg.Tick)},
		From:     msg.From,
		Name:     msg.Name,
		Text:     msg.Text,
	}
	return json.Marshal(frame)
}

// Diagnostics carries server health counters to interested clients.
type Diagnostics struct {
	Tick     sim.Tick
	Counters map[string]uint64
}

// EncodeDiagnostics renders a diagnostics frame.
func EncodeDiagnostics(msg Diagnostics) ([]byte, error) {
	frame := struct {
		envelope
		Counters map[string]uint64 `json:"counters,omitempty"`
	}{
		envelope: envelope{Ver: Version, Type: TypeDiagnostics, Channel: channel.Diagnostics, Tick: uint64(msg.Tick)},
		Counters: msg.Counters,
	}
	return json.Marshal(frame)
}

// ServerEnvelope is the decoded header of a server frame, used by clients to
// route the payload before a second, typed decode.
type ServerEnvelope struct {
	Ver     int        `json:"ver"`
	Type    string     `json:"type"`
	Channel channel.ID `json:"channel"`
	Tick    uint64     `json:"tick"`
}

// DecodeServerEnvelope sniffs the routing header from a server frame.
func DecodeServerEnvelope(payload []byte) (ServerEnvelope, error) {
	var env ServerEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, err
	}
	if env.Ver != Version {
		return env, fmt.Errorf("unsupported server protocol version %d", env.Ver)
	}
	return env, nil
}
