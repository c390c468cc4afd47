package meshlevel

import (
	"github.com/mastercactapus/gpnp/coord"
)

// OffsetFrom returns a copy of points with Z made relative to z, turning
// probed surface heights into offsets from the nominal board height.
func OffsetFrom(z float64, points []coord.Point) []coord.Point {
	p := make([]coord.Point, len(points))
	copy(p, points)

	for i := range p {
		p[i].Z -= z
	}
	return p
}

// Correct returns z adjusted by the offset at x,y, or z unchanged when o
// is nil or has no data there.
func Correct(o ZOffsetter, x, y, z float64) float64 {
	if o == nil {
		return z
	}
	ok, off := o.OffsetZ(x, y)
	if !ok {
		return z
	}
	return z + off
}
