package tsdf

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Config holds the store-wide geometry constants, fixed at construction.
type Config struct {
	// VoxelSize is the voxel edge length in meters.
	VoxelSize float64 `json:"voxel_size"`
	// VoxelsPerSide is the side length of a block in voxels.
	VoxelsPerSide int `json:"voxels_per_side"`
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate() error {
	if cfg.VoxelSize <= 0 {
		return errors.Errorf("invalid voxel size (%.4f), must be positive", cfg.VoxelSize)
	}
	if cfg.VoxelsPerSide <= 0 {
		return errors.Errorf("invalid voxels per side (%d), must be positive", cfg.VoxelsPerSide)
	}
	return nil
}

// GlobalVoxelIndex is the integer grid coordinate of a voxel in units of one
// voxel edge, independent of block boundaries.
type GlobalVoxelIndex struct {
	X, Y, Z int64
}

// BlockReader is the read-only view of a block handed to extraction callers.
type BlockReader interface {
	Index() BlockIndex
	Origin() r3.Vector
	VoxelsPerSide() int
	NumVoxels() int
	VoxelAt(VoxelIndex) Voxel
	VoxelIndexFromLinear(int) VoxelIndex
	CoordinatesOf(VoxelIndex) r3.Vector
}

// Reader is the read surface of a Map. Extraction accepts a Reader and
// nothing more; mutation stays with whoever holds the *Map.
type Reader interface {
	VoxelSize() float64
	VoxelsPerSide() int
	VoxelsPerBlock() int
	NumAllocatedBlocks() int
	AllocatedBlockIndices() []BlockIndex
	BlockAt(BlockIndex) (BlockReader, bool)
}

// Map is a block-sparse TSDF store. Blocks are allocated lazily on first
// write and never freed; geometry constants are immutable after construction.
// A Map is not safe for concurrent use: integration and extraction must be
// serialized by the caller so no read sees a half-applied observation.
type Map struct {
	voxelSize     float64
	voxelSizeInv  float64
	voxelsPerSide int
	blockSize     float64
	blockSizeInv  float64
	blocks        map[BlockIndex]*Block
}

// NewMap creates an empty store with the given geometry. Invalid geometry is
// a construction error; there is no way to repair a store built wrong.
func NewMap(cfg Config) (*Map, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	blockSize := cfg.VoxelSize * float64(cfg.VoxelsPerSide)
	return &Map{
		voxelSize:     cfg.VoxelSize,
		voxelSizeInv:  1.0 / cfg.VoxelSize,
		voxelsPerSide: cfg.VoxelsPerSide,
		blockSize:     blockSize,
		blockSizeInv:  1.0 / blockSize,
		blocks:        map[BlockIndex]*Block{},
	}, nil
}

// VoxelSize returns the voxel edge length.
func (m *Map) VoxelSize() float64 {
	return m.voxelSize
}

// VoxelsPerSide returns the block side length in voxels.
func (m *Map) VoxelsPerSide() int {
	return m.voxelsPerSide
}

// VoxelsPerBlock returns the voxel count of one block.
func (m *Map) VoxelsPerBlock() int {
	return m.voxelsPerSide * m.voxelsPerSide * m.voxelsPerSide
}

// BlockSize returns the block edge length in meters.
func (m *Map) BlockSize() float64 {
	return m.blockSize
}

// NumAllocatedBlocks returns the number of currently allocated blocks.
func (m *Map) NumAllocatedBlocks() int {
	return len(m.blocks)
}

// BlockIndexFromPoint returns the index of the block containing a world
// point: floor(point / blockSize), component-wise.
func (m *Map) BlockIndexFromPoint(pt r3.Vector) BlockIndex {
	return BlockIndex{
		X: int64(math.Floor(pt.X * m.blockSizeInv)),
		Y: int64(math.Floor(pt.Y * m.blockSizeInv)),
		Z: int64(math.Floor(pt.Z * m.blockSizeInv)),
	}
}

// GlobalVoxelIndexFromPoint returns the global voxel index containing a
// world point.
func (m *Map) GlobalVoxelIndexFromPoint(pt r3.Vector) GlobalVoxelIndex {
	return GlobalVoxelIndex{
		X: int64(math.Floor(pt.X * m.voxelSizeInv)),
		Y: int64(math.Floor(pt.Y * m.voxelSizeInv)),
		Z: int64(math.Floor(pt.Z * m.voxelSizeInv)),
	}
}

// SplitGlobalVoxelIndex splits a global voxel index into its owning block
// index and the local voxel index inside that block. Floor division keeps
// the split correct for negative coordinates.
func (m *Map) SplitGlobalVoxelIndex(g GlobalVoxelIndex) (BlockIndex, VoxelIndex) {
	vps := int64(m.voxelsPerSide)
	bx, lx := floorDivMod(g.X, vps)
	by, ly := floorDivMod(g.Y, vps)
	bz, lz := floorDivMod(g.Z, vps)
	return BlockIndex{X: bx, Y: by, Z: bz}, VoxelIndex{X: int(lx), Y: int(ly), Z: int(lz)}
}

func floorDivMod(a, n int64) (div, mod int64) {
	div = a / n
	mod = a % n
	if mod < 0 {
		mod += n
		div--
	}
	return div, mod
}

// AllocateBlock returns the block at the given index, allocating a
// zero-initialized one if it does not exist yet.
func (m *Map) AllocateBlock(idx BlockIndex) *Block {
	if b, ok := m.blocks[idx]; ok {
		return b
	}
	b := newBlock(idx, m.voxelSize, m.voxelsPerSide)
	m.blocks[idx] = b
	return b
}

// Block returns the write-capable block at the given index, if allocated.
func (m *Map) Block(idx BlockIndex) (*Block, bool) {
	b, ok := m.blocks[idx]
	return b, ok
}

// BlockAt returns a read-only view of the block at the given index, if
// allocated.
func (m *Map) BlockAt(idx BlockIndex) (BlockReader, bool) {
	b, ok := m.blocks[idx]
	if !ok {
		return nil, false
	}
	return b, true
}

// AllocatedBlockIndices returns a snapshot of all allocated block indices in
// lexicographic order, so one extraction pass enumerates blocks the same way
// every time.
func (m *Map) AllocatedBlockIndices() []BlockIndex {
	indices := make([]BlockIndex, 0, len(m.blocks))
	for idx := range m.blocks {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool {
		a, b := indices[i], indices[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return indices
}
