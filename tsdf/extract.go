package tsdf

import (
	"image/color"
	"math"

	pc "go.viam.com/voxmap/pointcloud"
)

// DefaultSurfaceThresholdRatio scales the voxel size into the default
// surface band: wide enough to avoid discretization gaps, narrow enough to
// keep interior and exterior bulk voxels out.
const DefaultSurfaceThresholdRatio = 0.75

// DefaultSurfaceThreshold returns the default surface distance threshold for
// a given voxel size.
func DefaultSurfaceThreshold(voxelSize float64) float64 {
	return DefaultSurfaceThresholdRatio * voxelSize
}

// ExtractDistanceField walks every allocated block and emits one value point
// per observed voxel, carrying the voxel's signed distance. Unobserved
// voxels (weight == 0) never appear. Enumeration is sorted block order, then
// linear voxel order, so repeated calls over an unchanged map produce
// identical clouds. An empty map yields an empty cloud.
func ExtractDistanceField(m Reader) (pc.PointCloud, error) {
	cloud := pc.NewWithPrealloc(m.NumAllocatedBlocks() * m.VoxelsPerBlock())
	for _, idx := range m.AllocatedBlockIndices() {
		block, ok := m.BlockAt(idx)
		if !ok {
			continue
		}
		for i := 0; i < block.NumVoxels(); i++ {
			vIdx := block.VoxelIndexFromLinear(i)
			voxel := block.VoxelAt(vIdx)
			if !voxel.Observed() {
				continue
			}
			if err := cloud.Set(block.CoordinatesOf(vIdx), pc.NewValueData(voxel.Distance)); err != nil {
				return nil, err
			}
		}
	}
	return cloud, nil
}

// ExtractSurface walks every allocated block and emits one colored point per
// observed voxel whose distance magnitude is strictly below the given
// threshold. Voxels near the zero crossing of the field approximate the
// observed surface. A voxel sitting exactly at the threshold is excluded.
func ExtractSurface(m Reader, surfaceDistanceThresh float64) (pc.PointCloud, error) {
	cloud := pc.New()
	for _, idx := range m.AllocatedBlockIndices() {
		block, ok := m.BlockAt(idx)
		if !ok {
			continue
		}
		for i := 0; i < block.NumVoxels(); i++ {
			vIdx := block.VoxelIndexFromLinear(i)
			voxel := block.VoxelAt(vIdx)
			if !voxel.Observed() || math.Abs(voxel.Distance) >= surfaceDistanceThresh {
				continue
			}
			c := color.NRGBA{R: voxel.Color.R, G: voxel.Color.G, B: voxel.Color.B, A: voxel.Color.A}
			if err := cloud.Set(block.CoordinatesOf(vIdx), pc.NewColoredData(c)); err != nil {
				return nil, err
			}
		}
	}
	return cloud, nil
}
