package tsdf

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	pc "go.viam.com/voxmap/pointcloud"
)

func newTestMap(t *testing.T) *Map {
	t.Helper()
	m, err := NewMap(Config{VoxelSize: 0.02, VoxelsPerSide: 16})
	test.That(t, err, test.ShouldBeNil)
	return m
}

func TestDefaultSurfaceThreshold(t *testing.T) {
	test.That(t, DefaultSurfaceThreshold(0.02), test.ShouldAlmostEqual, 0.015)
}

func TestExtractEmptyMap(t *testing.T) {
	m := newTestMap(t)

	dense, err := ExtractDistanceField(m)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dense.Size(), test.ShouldEqual, 0)

	surface, err := ExtractSurface(m, DefaultSurfaceThreshold(m.VoxelSize()))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, surface.Size(), test.ShouldEqual, 0)
}

func TestExtractAllocatedButUnobserved(t *testing.T) {
	m := newTestMap(t)
	m.AllocateBlock(BlockIndex{0, 0, 0})

	// weight == 0 everywhere, so nothing is emitted
	dense, err := ExtractDistanceField(m)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dense.Size(), test.ShouldEqual, 0)

	surface, err := ExtractSurface(m, DefaultSurfaceThreshold(m.VoxelSize()))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, surface.Size(), test.ShouldEqual, 0)
}

func TestExtractSingleSurfaceVoxel(t *testing.T) {
	m := newTestMap(t)
	b := m.AllocateBlock(BlockIndex{0, 0, 0})

	vIdx := VoxelIndex{X: 2, Y: 0, Z: 5}
	v := b.MutableVoxel(vIdx)
	v.Weight = 1.0
	v.Distance = 0.01
	v.Color = Color{R: 255, G: 0, B: 0, A: 255}

	wantCoord := b.CoordinatesOf(vIdx)

	surface, err := ExtractSurface(m, DefaultSurfaceThreshold(m.VoxelSize()))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, surface.Size(), test.ShouldEqual, 1)
	d, ok := surface.At(wantCoord.X, wantCoord.Y, wantCoord.Z)
	test.That(t, ok, test.ShouldBeTrue)
	r, g, bl := d.RGB255()
	test.That(t, r, test.ShouldEqual, 255)
	test.That(t, g, test.ShouldEqual, 0)
	test.That(t, bl, test.ShouldEqual, 0)

	dense, err := ExtractDistanceField(m)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dense.Size(), test.ShouldEqual, 1)
	d, ok = dense.At(wantCoord.X, wantCoord.Y, wantCoord.Z)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.HasValue(), test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 0.01)
}

func TestExtractSurfaceThresholdBoundary(t *testing.T) {
	m := newTestMap(t)
	b := m.AllocateBlock(BlockIndex{0, 0, 0})

	// distance exactly at the 0.015 threshold: strictly excluded
	v := b.MutableVoxel(VoxelIndex{X: 1, Y: 1, Z: 1})
	v.Weight = 1.0
	v.Distance = 0.015

	surface, err := ExtractSurface(m, 0.015)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, surface.Size(), test.ShouldEqual, 0)

	dense, err := ExtractDistanceField(m)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dense.Size(), test.ShouldEqual, 1)

	// negative distances count by magnitude
	v.Distance = -0.0149
	surface, err = ExtractSurface(m, 0.015)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, surface.Size(), test.ShouldEqual, 1)

	v.Distance = -0.015
	surface, err = ExtractSurface(m, 0.015)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, surface.Size(), test.ShouldEqual, 0)
}

func TestExtractBeyondThreshold(t *testing.T) {
	m := newTestMap(t)
	b := m.AllocateBlock(BlockIndex{0, 0, 0})

	v := b.MutableVoxel(VoxelIndex{X: 0, Y: 0, Z: 0})
	v.Weight = 1.0
	v.Distance = 0.02

	surface, err := ExtractSurface(m, 0.015)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, surface.Size(), test.ShouldEqual, 0)

	dense, err := ExtractDistanceField(m)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dense.Size(), test.ShouldEqual, 1)
	d, ok := dense.At(0, 0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 0.02)
}

func fillTestField(t *testing.T, m *Map) {
	t.Helper()
	distances := []float64{-0.05, -0.01, 0.0, 0.005, 0.014, 0.03}
	for bi, bIdx := range []BlockIndex{{0, 0, 0}, {-1, 0, 2}, {3, -2, 1}} {
		b := m.AllocateBlock(bIdx)
		for i := 0; i < len(distances); i++ {
			v := b.MutableVoxel(b.VoxelIndexFromLinear(i*97 + bi))
			v.Weight = float64(i + 1)
			v.Distance = distances[i]
			v.Color = Color{R: uint8(40 * i), G: 128, B: uint8(255 - 40*i), A: 255}
		}
	}
}

func TestExtractSurfaceSubsetOfDense(t *testing.T) {
	m := newTestMap(t)
	fillTestField(t, m)

	dense, err := ExtractDistanceField(m)
	test.That(t, err, test.ShouldBeNil)
	surface, err := ExtractSurface(m, DefaultSurfaceThreshold(m.VoxelSize()))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, surface.Size(), test.ShouldBeLessThan, dense.Size())
	surface.Iterate(func(p r3.Vector, d pc.Data) bool {
		dd, ok := dense.At(p.X, p.Y, p.Z)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, dd.Value() < 0.015 && dd.Value() > -0.015, test.ShouldBeTrue)
		return true
	})
}

func TestExtractIdempotent(t *testing.T) {
	m := newTestMap(t)
	fillTestField(t, m)

	collect := func(cloud pc.PointCloud) []pc.PointAndData {
		out := []pc.PointAndData{}
		cloud.Iterate(func(p r3.Vector, d pc.Data) bool {
			out = append(out, pc.PointAndData{P: p, D: d})
			return true
		})
		return out
	}

	dense1, err := ExtractDistanceField(m)
	test.That(t, err, test.ShouldBeNil)
	dense2, err := ExtractDistanceField(m)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, collect(dense1), test.ShouldResemble, collect(dense2))

	surf1, err := ExtractSurface(m, 0.015)
	test.That(t, err, test.ShouldBeNil)
	surf2, err := ExtractSurface(m, 0.015)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, collect(surf1), test.ShouldResemble, collect(surf2))
}

func TestExtractCoordinateReconstruction(t *testing.T) {
	m := newTestMap(t)
	// negative block: coordinates must still reconstruct exactly
	b := m.AllocateBlock(BlockIndex{X: -1, Y: -1, Z: -1})
	vIdx := VoxelIndex{X: 15, Y: 0, Z: 7}
	v := b.MutableVoxel(vIdx)
	v.Weight = 2.0
	v.Distance = -0.004

	dense, err := ExtractDistanceField(m)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dense.Size(), test.ShouldEqual, 1)

	want := b.Origin().Add(r3.Vector{X: 15 * 0.02, Y: 0, Z: 7 * 0.02})
	_, ok := dense.At(want.X, want.Y, want.Z)
	test.That(t, ok, test.ShouldBeTrue)
}
