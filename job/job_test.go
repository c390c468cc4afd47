package job

import (
	"path/filepath"
	"testing"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJob = `
name: demo
boards:
  - board:
      name: blinky
      placements:
        - {id: R1, part: R0603-1K, location: {x: 10, y: 5, rotation: 90}}
        - {id: R2, part: R0603-1K, location: {x: 20, y: 5}, enabled: false}
        - {id: FID1, part: FID, type: Fiducial, location: {x: 1, y: 1}}
    location: {x: 100, y: 50, z: -10}
    placed: {R2: true}
  - board: {name: spare}
    enabled: false
`

func TestParse(t *testing.T) {
	j, err := Parse([]byte(testJob))
	require.NoError(t, err)

	require.Len(t, j.Boards, 2)
	bl := j.Boards[0]
	assert.True(t, bl.Enabled)
	assert.Equal(t, SideTop, bl.Side)
	assert.True(t, bl.IsPlaced("R2"))
	assert.False(t, bl.IsPlaced("R1"))

	p := bl.Board.Placements
	assert.True(t, p[0].Enabled)
	assert.Equal(t, TypePlacement, p[0].Type)
	assert.False(t, p[1].Enabled)
	assert.Equal(t, TypeFiducial, p[2].Type)

	assert.Equal(t, []*BoardLocation{bl}, j.EnabledBoards())
}

func TestParse_MissingBoard(t *testing.T) {
	_, err := Parse([]byte("boards: [{enabled: true}]"))
	assert.Error(t, err)
}

func TestJob_SaveLoad(t *testing.T) {
	j, err := Parse([]byte(testJob))
	require.NoError(t, err)

	assert.Error(t, j.Save(""))

	name := filepath.Join(t.TempDir(), "jobs", "demo.yaml")
	j.Boards[0].SetPlaced("R1", true)
	require.NoError(t, j.Save(name))
	assert.Equal(t, name, j.File())

	l, err := Load(name)
	require.NoError(t, err)
	assert.True(t, l.Boards[0].IsPlaced("R1"))
	assert.True(t, l.Boards[0].IsPlaced("R2"))
	assert.False(t, l.Boards[1].Enabled)
	assert.Equal(t, coord.Location{X: 100, Y: 50, Z: -10}, l.Boards[0].Location)

	require.NoError(t, FileSaver{}.SaveJob(l))
}

func TestBoard_DuplicateIDs(t *testing.T) {
	b := &Board{Placements: []*Placement{{ID: "R1"}, {ID: "R2"}, {ID: "R1"}, {ID: "R1"}}}
	assert.Equal(t, []string{"R1"}, b.DuplicateIDs())
}

func TestBoardLocation_PlacementLocation(t *testing.T) {
	bl := &BoardLocation{Location: coord.Location{X: 100, Y: 50, Z: -10, Rotation: 90}}
	p := &Placement{Location: coord.Location{X: 10, Y: 0, Rotation: 45}}

	l := bl.PlacementLocation(p)
	assert.InDelta(t, 100, l.X, 1e-9)
	assert.InDelta(t, 60, l.Y, 1e-9)
	assert.InDelta(t, -10, l.Z, 1e-9)
	assert.InDelta(t, 135, l.Rotation, 1e-9)

	bl.Side = SideBottom
	bl.Location.Rotation = 0
	l = bl.PlacementLocation(p)
	assert.InDelta(t, 90, l.X, 1e-9)
	assert.InDelta(t, -45, l.Rotation, 1e-9)

	tr := coord.RigidTransform(0, 5, 5)
	bl.Side = SideTop
	bl.Transform = &tr
	l = bl.PlacementLocation(p)
	assert.InDelta(t, 15, l.X, 1e-9)
	assert.InDelta(t, 5, l.Y, 1e-9)
}

func TestBoardLocation_Surface(t *testing.T) {
	bl := &BoardLocation{
		Location: coord.Location{Z: -10},
		Surface: []coord.Point{
			{X: 0, Y: 0, Z: -10},
			{X: 100, Y: 0, Z: -9},
			{X: 0, Y: 100, Z: -10},
			{X: 100, Y: 100, Z: -9},
		},
	}
	l := bl.PlacementLocation(&Placement{Location: coord.Location{X: 50, Y: 20}})
	assert.InDelta(t, -9.5, l.Z, 1e-9)
}

func TestPartLibrary(t *testing.T) {
	lib := NewPartLibrary([]*Part{{ID: "B"}, {ID: "A", Speed: 2}})
	p, err := lib.Get("A")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.MotionSpeed())
	assert.Equal(t, "B", lib.Parts()[1].ID)

	_, err = lib.Get("C")
	assert.ErrorIs(t, err, ErrNotFound)
}
