package sim

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandMove      CommandType = "Move"
	CommandAction    CommandType = "Action"
	CommandHeartbeat CommandType = "Heartbeat"
)

// MoveIntent carries the desired movement axes for one tick. Axes are in the
// range [-1, 1]; the step normalises anything longer than a unit vector.
type MoveIntent struct {
	DX   float64 `json:"dx"`
	DZ   float64 `json:"dz"`
	Jump bool    `json:"jump,omitempty"`
	Yaw  float64 `json:"yaw"`
}

// ActionIntent identifies a world interaction trigger such as a block break.
type ActionIntent struct {
	Name string `json:"name"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Z    int    `json:"z"`
}

// Command represents an intent captured for processing on a specific tick.
// It is owned by the producing connection until the step consumes it and is
// immutable once created.
type Command struct {
	Tick           Tick          `json:"tick"`
	Sequence       uint32        `json:"seq"`
	Owner          EntityID      `json:"owner"`
	Type           CommandType   `json:"type"`
	Move           *MoveIntent   `json:"move,omitempty"`
	Action         *ActionIntent `json:"action,omitempty"`
	ClientSendTick Tick          `json:"clientSendTick,omitempty"`
}

// Less orders commands for deterministic application within one tick:
// ascending by owner, then by sequence. Arrival order never matters.
func (c Command) Less(other Command) bool {
	if c.Owner != other.Owner {
		return c.Owner < other.Owner
	}
	return c.Sequence < other.Sequence
}
