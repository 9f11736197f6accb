// Package tsdf implements a block-sparse truncated signed distance field and
// the traversals that turn it into point clouds.
//
// The field is stored as fixed-size cubic blocks of voxels, allocated lazily
// as observations arrive. Each voxel holds the signed distance to the nearest
// observed surface, an accumulated confidence weight, and a fused color.
package tsdf

// Color is a 4-channel color sample, 0-255 per channel.
type Color struct {
	R, G, B, A uint8
}

// Voxel is the smallest cell of the distance field. The zero value means the
// voxel has never been observed: Distance and Color are not meaningful until
// Weight is positive, and consumers must check Weight before reading them.
type Voxel struct {
	Distance float64
	Weight   float64
	Color    Color
}

// Observed reports whether the voxel has ever received an observation.
func (v Voxel) Observed() bool {
	return v.Weight > 0
}
