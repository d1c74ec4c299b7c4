package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkCodecRoundTrip(t *testing.T) {
	provider := NewPerlinProvider("codec-roundtrip")
	chunk, err := provider.ChunkAt(ChunkPos{X: 1, Z: -2})
	require.NoError(t, err)

	payload, err := EncodeChunk(chunk)
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	decoded, err := DecodeChunk(chunk.Pos, payload)
	require.NoError(t, err)
	assert.Equal(t, chunk.Blocks, decoded.Blocks)
	assert.Equal(t, chunk.Pos, decoded.Pos)
}

func TestChunkCodecCompresses(t *testing.T) {
	chunk := NewChunkData(ChunkPos{})
	for i := range chunk.Blocks {
		chunk.Blocks[i] = BlockStone
	}
	payload, err := EncodeChunk(chunk)
	require.NoError(t, err)
	assert.Less(t, len(payload), ChunkVolume/8, "uniform chunk should collapse to a few runs")
}

func TestDecodeChunkDetectsCorruption(t *testing.T) {
	chunk := NewChunkData(ChunkPos{})
	chunk.SetBlock(0, 0, 0, BlockDirt)
	payload, err := EncodeChunk(chunk)
	require.NoError(t, err)

	raw, err := zstdDecoder.DecodeAll(payload, nil)
	require.NoError(t, err)
	raw[1] ^= 0xFF
	tampered := zstdEncoder.EncodeAll(raw, nil)

	_, err = DecodeChunk(chunk.Pos, tampered)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestEncodeChunkRejectsWrongVolume(t *testing.T) {
	_, err := EncodeChunk(ChunkData{Blocks: make([]BlockID, 10)})
	require.Error(t, err)
}

func TestPerlinProviderDeterministic(t *testing.T) {
	a := NewPerlinProvider("same-seed")
	b := NewPerlinProvider("same-seed")
	chunkA, err := a.ChunkAt(ChunkPos{X: 3, Z: 7})
	require.NoError(t, err)
	chunkB, err := b.ChunkAt(ChunkPos{X: 3, Z: 7})
	require.NoError(t, err)
	assert.Equal(t, chunkA.Blocks, chunkB.Blocks)

	other := NewPerlinProvider("other-seed")
	chunkC, err := other.ChunkAt(ChunkPos{X: 3, Z: 7})
	require.NoError(t, err)
	assert.NotEqual(t, chunkA.Blocks, chunkC.Blocks, "different seeds should diverge")
}
