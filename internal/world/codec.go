package world

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/zstd"
)

// Encoding names the chunk codec for the wire envelope.
const Encoding = "palette-rle-zstd"

const codecVersion = 1

var (
	// ErrChecksum indicates the decoded payload failed CRC validation.
	ErrChecksum = errors.New("chunk payload checksum mismatch")
	// ErrTruncated indicates the payload ended before the declared runs.
	ErrTruncated = errors.New("chunk payload truncated")
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeChunk serializes a chunk as a block palette followed by run-length
// pairs, guards it with a CRC32, and compresses the result. The layout before
// compression is:
//
//	version  u8
//	palette  u16 count, then count u16 block ids
//	runs     u16 count, then count (u16 length, u16 palette index) pairs
//	crc32    u32 over everything above (IEEE)
func EncodeChunk(chunk ChunkData) ([]byte, error) {
	if len(chunk.Blocks) != ChunkVolume {
		return nil, fmt.Errorf("chunk %s has %d blocks, want %d", chunk.Pos, len(chunk.Blocks), ChunkVolume)
	}

	palette := make([]BlockID, 0, 8)
	paletteIndex := make(map[BlockID]uint16, 8)
	lookup := func(id BlockID) uint16 {
		if idx, ok := paletteIndex[id]; ok {
			return idx
		}
		idx := uint16(len(palette))
		palette = append(palette, id)
		paletteIndex[id] = idx
		return idx
	}

	type run struct {
		length uint16
		index  uint16
	}
	runs := make([]run, 0, 64)
	current := run{length: 1, index: lookup(chunk.Blocks[0])}
	for _, block := range chunk.Blocks[1:] {
		idx := lookup(block)
		if idx == current.index && current.length < 0xFFFF {
			current.length++
			continue
		}
		runs = append(runs, current)
		current = run{length: 1, index: idx}
	}
	runs = append(runs, current)

	var buf bytes.Buffer
	buf.WriteByte(codecVersion)
	binary.Write(&buf, binary.LittleEndian, uint16(len(palette)))
	for _, id := range palette {
		binary.Write(&buf, binary.LittleEndian, uint16(id))
	}
	binary.Write(&buf, binary.LittleEndian, uint16(len(runs)))
	for _, r := range runs {
		binary.Write(&buf, binary.LittleEndian, r.length)
		binary.Write(&buf, binary.LittleEndian, r.index)
	}
	binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE(buf.Bytes()))

	return zstdEncoder.EncodeAll(buf.Bytes(), nil), nil
}

// DecodeChunk reverses EncodeChunk into the blocks of the chunk at pos.
func DecodeChunk(pos ChunkPos, payload []byte) (ChunkData, error) {
	raw, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return ChunkData{}, fmt.Errorf("decompress chunk %s: %w", pos, err)
	}
	if len(raw) < 4 {
		return ChunkData{}, ErrTruncated
	}
	body, tail := raw[:len(raw)-4], raw[len(raw)-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(tail) {
		return ChunkData{}, ErrChecksum
	}

	r := bytes.NewReader(body)
	version, err := r.ReadByte()
	if err != nil {
		return ChunkData{}, ErrTruncated
	}
	if version != codecVersion {
		return ChunkData{}, fmt.Errorf("unsupported chunk codec version %d", version)
	}

	var paletteLen uint16
	if err := binary.Read(r, binary.LittleEndian, &paletteLen); err != nil {
		return ChunkData{}, ErrTruncated
	}
	palette := make([]BlockID, paletteLen)
	for i := range palette {
		var id uint16
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return ChunkData{}, ErrTruncated
		}
		palette[i] = BlockID(id)
	}

	var runCount uint16
	if err := binary.Read(r, binary.LittleEndian, &runCount); err != nil {
		return ChunkData{}, ErrTruncated
	}

	chunk := NewChunkData(pos)
	offset := 0
	for i := 0; i < int(runCount); i++ {
		var length, index uint16
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return ChunkData{}, ErrTruncated
		}
		if err := binary.Read(r, binary.LittleEndian, &index); err != nil {
			return ChunkData{}, ErrTruncated
		}
		if int(index) >= len(palette) {
			return ChunkData{}, fmt.Errorf("palette index %d out of range", index)
		}
		if offset+int(length) > ChunkVolume {
			return ChunkData{}, fmt.Errorf("runs overflow chunk volume at %d", offset)
		}
		block := palette[index]
		for j := 0; j < int(length); j++ {
			chunk.Blocks[offset+j] = block
		}
		offset += int(length)
	}
	if offset != ChunkVolume {
		return ChunkData{}, fmt.Errorf("runs cover %d blocks, want %d", offset, ChunkVolume)
	}
	return chunk, nil
}
