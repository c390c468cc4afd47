package coord

import "math"

// Affine is a 2D affine transform mapping board coordinates to machine
// coordinates, as produced by a fiducial check.
//
//	x' = A*x + B*y + C
//	y' = D*x + E*y + F
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Identity is the transform that leaves points unchanged.
var Identity = Affine{A: 1, E: 1}

// RigidTransform builds a rotation by deg degrees followed by a
// translation.
func RigidTransform(deg, tx, ty float64) Affine {
	sin, cos := math.Sincos(deg * math.Pi / 180)
	return Affine{
		A: cos, B: -sin, C: tx,
		D: sin, E: cos, F: ty,
	}
}

// Apply transforms the X and Y of l and adds the transform's rotation to
// l.Rotation. Z is kept.
func (t Affine) Apply(l Location) Location {
	x := t.A*l.X + t.B*l.Y + t.C
	y := t.D*l.X + t.E*l.Y + t.F
	l.X, l.Y = x, y
	l.Rotation += t.Rotation()
	return l
}

// Rotation returns the rotation component of t in degrees.
func (t Affine) Rotation() float64 {
	return math.Atan2(t.D, t.A) * 180 / math.Pi
}
