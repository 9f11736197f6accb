package pointcloud

import (
	"image/color"

	"github.com/golang/geo/r3"
)

// NewVector is a convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Data describes the data associated with a single point within a PointCloud.
type Data interface {
	// HasColor returns whether or not this point is colored.
	HasColor() bool

	// RGB255 returns, if colored, the RGB components of the color. There
	// is no alpha channel right now and as such the data can be assumed to be
	// premultiplied.
	RGB255() (uint8, uint8, uint8)

	// Color returns the native color of the point.
	Color() color.Color

	// HasValue returns whether or not this point has a scalar value
	// associated with it.
	HasValue() bool

	// Value returns the scalar value, if it exists. For clouds produced by
	// TSDF extraction this is the signed distance at the voxel.
	Value() float64
}

// basicData is the basic implementation of Data.
type basicData struct {
	hasColor bool
	c        color.NRGBA

	hasValue bool
	value    float64
}

// NewBasicData returns a point data with no color or value.
func NewBasicData() Data {
	return &basicData{}
}

// NewColoredData returns a point data with the given color.
func NewColoredData(c color.NRGBA) Data {
	return &basicData{c: c, hasColor: true}
}

// NewValueData returns a point data with the given value.
func NewValueData(v float64) Data {
	return &basicData{value: v, hasValue: true}
}

func (bd *basicData) HasColor() bool {
	return bd.hasColor
}

func (bd *basicData) RGB255() (uint8, uint8, uint8) {
	return bd.c.R, bd.c.G, bd.c.B
}

func (bd *basicData) Color() color.Color {
	return &bd.c
}

func (bd *basicData) HasValue() bool {
	return bd.hasValue
}

func (bd *basicData) Value() float64 {
	return bd.value
}

// PointAndData is a tiny struct to be used in places where returning a point
// and its data as a unit is necessary.
type PointAndData struct {
	P r3.Vector
	D Data
}
