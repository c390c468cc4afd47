package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// a measured patch of a board that dips toward +X
var boardPatch = Triangle{
	A: Point{0, 0, -1},
	B: Point{20, 0, -1.2},
	C: Point{0, 20, -0.8},
}

func TestTriangle_Z(t *testing.T) {
	assert.InDelta(t, -1, boardPatch.Z(0, 0), 1e-9)
	assert.InDelta(t, -1.2, boardPatch.Z(20, 0), 1e-9)
	assert.InDelta(t, -1.05, boardPatch.Z(10, 5), 1e-9)
	assert.InDelta(t, -1, boardPatch.Z(10, 10), 1e-9)

	flat := Triangle{A: Point{5, 5, -2}, B: Point{15, 5, -2}, C: Point{5, 15, -2}}
	assert.Equal(t, -2.0, flat.Z(7, 8))
}

func TestTriangle_ContainsXY(t *testing.T) {
	reversed := Triangle{A: boardPatch.A, B: boardPatch.C, C: boardPatch.B}

	for _, tri := range []Triangle{boardPatch, reversed} {
		assert.True(t, tri.ContainsXY(10, 5))
		assert.True(t, tri.ContainsXY(0, 0), "corner")
		assert.True(t, tri.ContainsXY(10, 10), "on the hypotenuse")
		assert.True(t, tri.ContainsXY(10.0005, 10), "within epsilon of an edge")
		assert.True(t, tri.ContainsXY(-0.0005, 5), "within epsilon of an edge")

		assert.False(t, tri.ContainsXY(10.01, 10))
		assert.False(t, tri.ContainsXY(-0.01, 5))
		assert.False(t, tri.ContainsXY(25, 0))
	}
}
