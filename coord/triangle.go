package coord

import "math"

const (
	// Epsilon is how far outside an edge a point may be and still count
	// as inside a Triangle.
	Epsilon   = 0.001
	epsilonSq = Epsilon * Epsilon
)

// Triangle is one face of a measured height mesh.
type Triangle struct{ A, B, C Point }

// ContainsXY reports whether x,y falls inside the triangle seen from
// above, or within Epsilon of one of its edges. Winding order does not
// matter.
func (t Triangle) ContainsXY(x, y float64) bool {
	p := Point{X: x, Y: y}
	if !t.inBoundsXY(p) {
		return false
	}

	s1, s2, s3 := edgeSide(t.A, t.B, p), edgeSide(t.B, t.C, p), edgeSide(t.C, t.A, p)
	if (s1 >= 0 && s2 >= 0 && s3 >= 0) || (s1 <= 0 && s2 <= 0 && s3 <= 0) {
		return true
	}

	return segmentDistSqXY(t.A, t.B, p) <= epsilonSq ||
		segmentDistSqXY(t.B, t.C, p) <= epsilonSq ||
		segmentDistSqXY(t.C, t.A, p) <= epsilonSq
}

// Z returns the height of the triangle's plane at x,y.
func (t Triangle) Z(x, y float64) float64 {
	n := t.B.Sub(t.A).Cross(t.C.Sub(t.A))
	return t.A.Z - (n.X*(x-t.A.X)+n.Y*(y-t.A.Y))/n.Z
}

func (t Triangle) inBoundsXY(p Point) bool {
	minX := math.Min(t.A.X, math.Min(t.B.X, t.C.X)) - Epsilon
	maxX := math.Max(t.A.X, math.Max(t.B.X, t.C.X)) + Epsilon
	minY := math.Min(t.A.Y, math.Min(t.B.Y, t.C.Y)) - Epsilon
	maxY := math.Max(t.A.Y, math.Max(t.B.Y, t.C.Y)) + Epsilon
	return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
}

// edgeSide is positive on one side of the line a->b and negative on the
// other.
func edgeSide(a, b, p Point) float64 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}

func segmentDistSqXY(a, b, p Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	var f float64
	if lenSq > 0 {
		f = ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
		f = math.Max(0, math.Min(1, f))
	}
	ex, ey := p.X-(a.X+f*dx), p.Y-(a.Y+f*dy)
	return ex*ex + ey*ey
}
