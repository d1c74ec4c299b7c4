// Package world provides terrain chunks, their wire codec, and the
// distance-ordered streamer that feeds them to clients.
package world

import "fmt"

const (
	// ChunkSize is the edge length of a cubic chunk in blocks.
	ChunkSize = 16
	// ChunkVolume is the block count of one chunk.
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize
)

// BlockID identifies a block type inside a chunk.
type BlockID uint16

const (
	BlockAir BlockID = iota
	BlockStone
	BlockDirt
	BlockGrass
	BlockWater
)

// ChunkPos addresses a chunk column in chunk coordinates.
type ChunkPos struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// String renders the position for logs.
func (p ChunkPos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Z) }

// ChunkData holds the blocks of one chunk in x-major, then z, then y order.
type ChunkData struct {
	Pos    ChunkPos
	Blocks []BlockID
}

// NewChunkData allocates an air-filled chunk at the given position.
func NewChunkData(pos ChunkPos) ChunkData {
	return ChunkData{Pos: pos, Blocks: make([]BlockID, ChunkVolume)}
}

// Index converts local block coordinates to the flat block index.
func Index(x, y, z int) int {
	return (x*ChunkSize+z)*ChunkSize + y
}

// Block returns the block at local coordinates.
func (c ChunkData) Block(x, y, z int) BlockID {
	return c.Blocks[Index(x, y, z)]
}

// SetBlock writes the block at local coordinates.
func (c ChunkData) SetBlock(x, y, z int, id BlockID) {
	c.Blocks[Index(x, y, z)] = id
}

// Provider produces chunk contents. Implementations must be deterministic:
// the same position always yields the same blocks.
type Provider interface {
	ChunkAt(pos ChunkPos) (ChunkData, error)
}
