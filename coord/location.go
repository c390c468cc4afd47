package coord

import (
	"math"
)

// Location is a machine pose: a point plus a rotation in degrees.
//
// Any axis may be Unset (NaN), meaning "keep the current value" when the
// location is used as a move target.
type Location struct {
	X        float64 `yaml:"x" json:"x"`
	Y        float64 `yaml:"y" json:"y"`
	Z        float64 `yaml:"z" json:"z"`
	Rotation float64 `yaml:"rotation" json:"rotation"`
}

// Unset marks an axis that should not be moved.
var Unset = math.NaN()

// IsUnset reports if v is the Unset marker.
func IsUnset(v float64) bool { return math.IsNaN(v) }

func (l Location) Point() Point { return Point{X: l.X, Y: l.Y, Z: l.Z} }

// Equal compares all four axes. Unset axes are only equal to other
// Unset axes.
func (l Location) Equal(o Location) bool {
	eq := func(a, b float64) bool {
		if IsUnset(a) || IsUnset(b) {
			return IsUnset(a) && IsUnset(b)
		}
		return a == b
	}
	return eq(l.X, o.X) && eq(l.Y, o.Y) && eq(l.Z, o.Z) && eq(l.Rotation, o.Rotation)
}

// DerivedFrom fills every Unset axis of l with the value from base.
func (l Location) DerivedFrom(base Location) Location {
	if IsUnset(l.X) {
		l.X = base.X
	}
	if IsUnset(l.Y) {
		l.Y = base.Y
	}
	if IsUnset(l.Z) {
		l.Z = base.Z
	}
	if IsUnset(l.Rotation) {
		l.Rotation = base.Rotation
	}
	return l
}

// WithZ returns l with Z replaced.
func (l Location) WithZ(z float64) Location {
	l.Z = z
	return l
}

// WithRotation returns l with Rotation replaced.
func (l Location) WithRotation(r float64) Location {
	l.Rotation = r
	return l
}

// Add adds the X, Y and Z of o. Rotation is kept.
func (l Location) Add(o Location) Location {
	l.X += o.X
	l.Y += o.Y
	l.Z += o.Z
	return l
}

// Sub subtracts the X, Y and Z of o. Rotation is kept.
func (l Location) Sub(o Location) Location {
	l.X -= o.X
	l.Y -= o.Y
	l.Z -= o.Z
	return l
}

// AddWithRotation adds all four axes.
func (l Location) AddWithRotation(o Location) Location {
	l = l.Add(o)
	l.Rotation += o.Rotation
	return l
}

// SubWithRotation subtracts all four axes.
func (l Location) SubWithRotation(o Location) Location {
	l = l.Sub(o)
	l.Rotation -= o.Rotation
	return l
}

// RotateXY rotates the X and Y of l about the origin by deg degrees
// counter-clockwise.
func (l Location) RotateXY(deg float64) Location {
	if deg == 0 {
		return l
	}
	rad := deg * math.Pi / 180
	sin, cos := math.Sincos(rad)
	x := l.X*cos - l.Y*sin
	y := l.X*sin + l.Y*cos
	l.X, l.Y = x, y
	return l
}

// RotateXYCenterPoint rotates the X and Y of l about the X and Y of
// center by deg degrees.
func (l Location) RotateXYCenterPoint(center Location, deg float64) Location {
	r := Location{X: l.X - center.X, Y: l.Y - center.Y}.RotateXY(deg)
	l.X = r.X + center.X
	l.Y = r.Y + center.Y
	return l
}

// LimitRotation maps rotations beyond +/-180 degrees onto the equivalent
// shorter angle, so 190 becomes -170 and -190 becomes 170.
func LimitRotation(deg float64) float64 {
	if deg > 180 {
		return deg - 360
	}
	if deg < -180 {
		return deg + 360
	}
	return deg
}
