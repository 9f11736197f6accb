// Package spatialmath defines spatial mathematical operations.
//
// Only what rigid sensor-to-world transforms need lives here: a unit
// quaternion rotation paired with a translation.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform in 3D space: a rotation expressed as a unit
// quaternion, followed by a translation.
type Pose struct {
	rotation    quat.Number
	translation r3.Vector
}

// NewZeroPose returns the identity transform. Since the rotation of a pose
// should be a unit quaternion, not all zeroes, this should be used instead
// of Pose{}.
func NewZeroPose() Pose {
	return Pose{rotation: quat.Number{Real: 1}}
}

// NewPose returns a pose with the given translation and rotation. The
// rotation is normalized to a unit quaternion.
func NewPose(translation r3.Vector, rotation quat.Number) Pose {
	n := math.Sqrt(rotation.Real*rotation.Real + rotation.Imag*rotation.Imag +
		rotation.Jmag*rotation.Jmag + rotation.Kmag*rotation.Kmag)
	if n == 0 {
		rotation = quat.Number{Real: 1}
	} else {
		rotation = quat.Scale(1/n, rotation)
	}
	return Pose{rotation: rotation, translation: translation}
}

// NewPoseFromPoint returns a pure-translation pose.
func NewPoseFromPoint(translation r3.Vector) Pose {
	return Pose{rotation: quat.Number{Real: 1}, translation: translation}
}

// NewPoseFromAxisAngle returns a pose rotating by theta radians about the
// given axis, then translating.
func NewPoseFromAxisAngle(translation, axis r3.Vector, theta float64) Pose {
	axis = axis.Normalize()
	s := math.Sin(theta / 2)
	return Pose{
		rotation: quat.Number{
			Real: math.Cos(theta / 2),
			Imag: axis.X * s,
			Jmag: axis.Y * s,
			Kmag: axis.Z * s,
		},
		translation: translation,
	}
}

// Rotation returns the pose's rotation quaternion.
func (p Pose) Rotation() quat.Number {
	return p.rotation
}

// Translation returns the pose's translation vector.
func (p Pose) Translation() r3.Vector {
	return p.translation
}

// TransformPoint applies the pose to a point: rotate, then translate.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	pq := quat.Number{Imag: pt.X, Jmag: pt.Y, Kmag: pt.Z}
	rq := quat.Mul(quat.Mul(p.rotation, pq), quat.Conj(p.rotation))
	return r3.Vector{
		X: rq.Imag + p.translation.X,
		Y: rq.Jmag + p.translation.Y,
		Z: rq.Kmag + p.translation.Z,
	}
}

// Compose returns the pose equivalent to applying o first, then p.
func (p Pose) Compose(o Pose) Pose {
	return Pose{
		rotation:    quat.Mul(p.rotation, o.rotation),
		translation: p.TransformPoint(o.translation),
	}
}

// Invert returns the inverse transform.
func (p Pose) Invert() Pose {
	inv := quat.Conj(p.rotation)
	tq := quat.Number{Imag: p.translation.X, Jmag: p.translation.Y, Kmag: p.translation.Z}
	rq := quat.Mul(quat.Mul(inv, tq), quat.Conj(inv))
	return Pose{
		rotation:    inv,
		translation: r3.Vector{X: -rq.Imag, Y: -rq.Jmag, Z: -rq.Kmag},
	}
}

// AlmostEqual compares two poses within epsilon.
func (p Pose) AlmostEqual(o Pose, epsilon float64) bool {
	if p.translation.Sub(o.translation).Norm() > epsilon {
		return false
	}
	// q and -q are the same rotation
	d := quat.Mul(p.rotation, quat.Conj(o.rotation))
	return math.Abs(math.Abs(d.Real)-1) < epsilon
}
