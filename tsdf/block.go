package tsdf

import (
	"github.com/golang/geo/r3"
)

// BlockIndex is the integer grid coordinate of a block, in units of one
// block side length.
type BlockIndex struct {
	X, Y, Z int64
}

// VoxelIndex addresses a voxel inside a block, each component in
// [0, voxelsPerSide).
type VoxelIndex struct {
	X, Y, Z int
}

// Block is a dense cube of voxelsPerSide^3 voxels. Blocks are owned
// exclusively by a Map and share its voxel size and side count.
type Block struct {
	index         BlockIndex
	origin        r3.Vector
	voxelSize     float64
	voxelsPerSide int
	voxels        []Voxel
}

func newBlock(index BlockIndex, voxelSize float64, voxelsPerSide int) *Block {
	blockSize := voxelSize * float64(voxelsPerSide)
	return &Block{
		index: index,
		origin: r3.Vector{
			X: float64(index.X) * blockSize,
			Y: float64(index.Y) * blockSize,
			Z: float64(index.Z) * blockSize,
		},
		voxelSize:     voxelSize,
		voxelsPerSide: voxelsPerSide,
		voxels:        make([]Voxel, voxelsPerSide*voxelsPerSide*voxelsPerSide),
	}
}

// Index returns the block's grid coordinate.
func (b *Block) Index() BlockIndex {
	return b.index
}

// Origin returns the world coordinate of the block's (0,0,0) voxel.
func (b *Block) Origin() r3.Vector {
	return b.origin
}

// VoxelsPerSide returns the block's side length in voxels.
func (b *Block) VoxelsPerSide() int {
	return b.voxelsPerSide
}

// NumVoxels returns the total voxel count of the block.
func (b *Block) NumVoxels() int {
	return len(b.voxels)
}

// LinearIndex flattens a voxel index, x fastest.
func (b *Block) LinearIndex(idx VoxelIndex) int {
	return idx.X + b.voxelsPerSide*(idx.Y+b.voxelsPerSide*idx.Z)
}

// VoxelIndexFromLinear is the inverse of LinearIndex.
func (b *Block) VoxelIndexFromLinear(i int) VoxelIndex {
	vps := b.voxelsPerSide
	return VoxelIndex{
		X: i % vps,
		Y: (i / vps) % vps,
		Z: i / (vps * vps),
	}
}

// VoxelAt returns a copy of the voxel at the given local index.
func (b *Block) VoxelAt(idx VoxelIndex) Voxel {
	return b.voxels[b.LinearIndex(idx)]
}

// MutableVoxel returns a write handle to the voxel at the given local index.
// Only the integration path may use it.
func (b *Block) MutableVoxel(idx VoxelIndex) *Voxel {
	return &b.voxels[b.LinearIndex(idx)]
}

// CoordinatesOf reconstructs the world coordinate of a voxel:
// origin + index * voxelSize.
func (b *Block) CoordinatesOf(idx VoxelIndex) r3.Vector {
	return r3.Vector{
		X: b.origin.X + float64(idx.X)*b.voxelSize,
		Y: b.origin.Y + float64(idx.Y)*b.voxelSize,
		Z: b.origin.Z + float64(idx.Z)*b.voxelSize,
	}
}
