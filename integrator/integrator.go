// Package integrator fuses posed point cloud observations into a TSDF map.
//
// For every observed point, the voxels along the sensor ray inside the
// truncation band around the point receive a weighted running update of
// signed distance, confidence and color. The integrator is the only writer
// of voxel state; readers extract through the map's read surface.
package integrator

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/voxmap/spatialmath"
	"go.viam.com/voxmap/tsdf"
)

// Integrator is the write-side contract: fuse one posed observation into the
// map. Calls must not be interleaved with extraction reads; once a call
// returns all affected voxels are visible to subsequent reads.
type Integrator interface {
	IntegratePointCloud(pose spatialmath.Pose, points []r3.Vector, colors []tsdf.Color) error
}

const (
	defaultTruncationRatio = 4.0
	defaultMaxWeight       = 10000.0
)

// Config tunes the fusion behavior.
type Config struct {
	// TruncationDistance bounds the distance magnitude stored in any voxel
	// and sets the width of the band updated around each observed point.
	// Zero means 4 voxel sizes.
	TruncationDistance float64 `json:"truncation_distance"`
	// MaxWeight caps the accumulated confidence per voxel so old surfaces
	// can still move. Zero means 10000.
	MaxWeight float64 `json:"max_weight"`
	// CarvingEnabled extends each ray back to the sensor origin, clearing
	// the free space it crossed.
	CarvingEnabled bool `json:"carving_enabled"`
}

// PointCloudIntegrator fuses observations point by point.
type PointCloudIntegrator struct {
	logger    golog.Logger
	m         *tsdf.Map
	trunc     float64
	maxWeight float64
	carving   bool
}

// New returns an integrator writing into the given map.
func New(m *tsdf.Map, cfg Config, logger golog.Logger) (*PointCloudIntegrator, error) {
	trunc := cfg.TruncationDistance
	if trunc == 0 {
		trunc = defaultTruncationRatio * m.VoxelSize()
	}
	if trunc < 0 {
		return nil, errors.Errorf("invalid truncation distance (%.4f), must be positive", cfg.TruncationDistance)
	}
	maxWeight := cfg.MaxWeight
	if maxWeight == 0 {
		maxWeight = defaultMaxWeight
	}
	if maxWeight < 0 {
		return nil, errors.Errorf("invalid max weight (%.4f), must be positive", cfg.MaxWeight)
	}
	return &PointCloudIntegrator{
		logger:    logger,
		m:         m,
		trunc:     trunc,
		maxWeight: maxWeight,
		carving:   cfg.CarvingEnabled,
	}, nil
}

// TruncationDistance returns the active truncation bound.
func (ti *PointCloudIntegrator) TruncationDistance() float64 {
	return ti.trunc
}

// IntegratePointCloud transforms every sensor-frame point into the world
// frame and fuses it into the map, allocating blocks as needed. Points and
// colors must be parallel slices; non-finite points are skipped.
func (ti *PointCloudIntegrator) IntegratePointCloud(
	pose spatialmath.Pose,
	points []r3.Vector,
	colors []tsdf.Color,
) error {
	if len(points) != len(colors) {
		return errors.Errorf("point count (%d) does not match color count (%d)", len(points), len(colors))
	}

	origin := pose.Translation()
	skipped := 0
	for i, pt := range points {
		if !isFinite(pt) {
			skipped++
			continue
		}
		ti.integrateRay(origin, pose.TransformPoint(pt), colors[i])
	}
	if skipped > 0 {
		ti.logger.Debugf("skipped %d non-finite points", skipped)
	}
	return nil
}

// integrateRay fuses one world-frame surface point along its sensor ray.
// Without carving only the truncation band around the point is touched;
// with carving the traversal starts at the sensor origin.
func (ti *PointCloudIntegrator) integrateRay(origin, point r3.Vector, c tsdf.Color) {
	toPoint := point.Sub(origin)
	dist := toPoint.Norm()
	if dist == 0 {
		return
	}
	dir := toPoint.Mul(1 / dist)

	start := point.Sub(dir.Mul(ti.trunc))
	if ti.carving {
		start = origin
	}
	end := point.Add(dir.Mul(ti.trunc))

	voxelSize := ti.m.VoxelSize()
	rayLen := end.Sub(start).Norm()

	// Sample at half-voxel steps and dedupe, so every voxel the segment
	// crosses is fused exactly once per ray.
	visited := map[tsdf.GlobalVoxelIndex]struct{}{}
	var block *tsdf.Block
	for t := 0.0; ; t += voxelSize * 0.5 {
		if t > rayLen {
			t = rayLen
		}
		sample := start.Add(dir.Mul(t))
		g := ti.m.GlobalVoxelIndexFromPoint(sample)
		if _, ok := visited[g]; !ok {
			visited[g] = struct{}{}

			blockIdx, vIdx := ti.m.SplitGlobalVoxelIndex(g)
			if block == nil || block.Index() != blockIdx {
				block = ti.m.AllocateBlock(blockIdx)
			}
			coord := block.CoordinatesOf(vIdx)
			ti.fuse(block.MutableVoxel(vIdx), signedDistance(origin, point, coord), c)
		}
		if t >= rayLen {
			break
		}
	}
}

// signedDistance is the distance from the voxel to the observed point,
// projected onto the ray: positive between sensor and surface, negative
// behind the surface.
func signedDistance(origin, point, voxel r3.Vector) float64 {
	vPoint := point.Sub(origin)
	vVoxel := voxel.Sub(origin)
	distPoint := vPoint.Norm()
	return distPoint - vVoxel.Dot(vPoint)/distPoint
}

func (ti *PointCloudIntegrator) fuse(v *tsdf.Voxel, sdf float64, c tsdf.Color) {
	const obsWeight = 1.0

	if sdf > ti.trunc {
		sdf = ti.trunc
	} else if sdf < -ti.trunc {
		sdf = -ti.trunc
	}

	newWeight := v.Weight + obsWeight
	v.Distance = (v.Distance*v.Weight + sdf*obsWeight) / newWeight
	v.Color = blendColors(v.Color, v.Weight, c, obsWeight)
	if newWeight > ti.maxWeight {
		newWeight = ti.maxWeight
	}
	v.Weight = newWeight
}

func blendColors(a tsdf.Color, wa float64, b tsdf.Color, wb float64) tsdf.Color {
	total := wa + wb
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round((float64(x)*wa + float64(y)*wb) / total))
	}
	return tsdf.Color{
		R: mix(a.R, b.R),
		G: mix(a.G, b.G),
		B: mix(a.B, b.B),
		A: mix(a.A, b.A),
	}
}

func isFinite(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
