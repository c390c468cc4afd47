package job

import (
	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/meshlevel"
	"gopkg.in/yaml.v3"
)

type Side string

const (
	SideTop    Side = "Top"
	SideBottom Side = "Bottom"
)

type PlacementType string

const (
	TypePlacement PlacementType = "Placement"
	TypeFiducial  PlacementType = "Fiducial"
)

// Placement is one part position on a board, in board coordinates.
type Placement struct {
	ID       string         `yaml:"id"`
	PartID   string         `yaml:"part"`
	Location coord.Location `yaml:"location"`
	Side     Side           `yaml:"side"`
	Type     PlacementType  `yaml:"type"`

	// Enabled placements are placed by a job.
	Enabled bool `yaml:"enabled"`

	// CheckFiducials requests a board fiducial check right before this
	// placement is placed.
	CheckFiducials bool `yaml:"checkFiducials,omitempty"`
}

func (p *Placement) UnmarshalYAML(n *yaml.Node) error {
	type raw Placement
	r := raw{Side: SideTop, Type: TypePlacement, Enabled: true}
	err := n.Decode(&r)
	if err != nil {
		return err
	}
	*p = Placement(r)
	return nil
}

type Board struct {
	Name       string       `yaml:"name"`
	Placements []*Placement `yaml:"placements"`
}

// DuplicateIDs returns the placement IDs used more than once, in order of
// first repetition.
func (b *Board) DuplicateIDs() []string {
	seen := make(map[string]int, len(b.Placements))
	var dups []string
	for _, p := range b.Placements {
		seen[p.ID]++
		if seen[p.ID] == 2 {
			dups = append(dups, p.ID)
		}
	}
	return dups
}

// BoardLocation is a Board mounted on the machine.
type BoardLocation struct {
	Board    *Board         `yaml:"board"`
	Location coord.Location `yaml:"location"`
	Side     Side           `yaml:"side"`
	Enabled  bool           `yaml:"enabled"`

	CheckFiducials bool `yaml:"checkFiducials,omitempty"`

	// Surface holds probed machine coordinates of the board surface. When
	// present, placement Z follows the surface relative to Location.Z.
	Surface []coord.Point `yaml:"surface,omitempty"`

	// Placed records placement IDs already placed.
	Placed map[string]bool `yaml:"placed,omitempty"`

	// Transform is set by a fiducial check and replaces Location for XY
	// and rotation.
	Transform *coord.Affine `yaml:"-"`

	mesh meshlevel.ZOffsetter
}

func (bl *BoardLocation) UnmarshalYAML(n *yaml.Node) error {
	type raw BoardLocation
	r := raw{Side: SideTop, Enabled: true}
	err := n.Decode(&r)
	if err != nil {
		return err
	}
	*bl = BoardLocation(r)
	return nil
}

func (bl *BoardLocation) Name() string {
	if bl.Board == nil {
		return ""
	}
	return bl.Board.Name
}

func (bl *BoardLocation) IsPlaced(id string) bool { return bl.Placed[id] }

func (bl *BoardLocation) SetPlaced(id string, placed bool) {
	if bl.Placed == nil {
		bl.Placed = make(map[string]bool)
	}
	if placed {
		bl.Placed[id] = true
	} else {
		delete(bl.Placed, id)
	}
}

// ClearPlaced forgets every placed placement.
func (bl *BoardLocation) ClearPlaced() { bl.Placed = nil }

// PlacementLocation maps a placement to machine coordinates.
//
// Bottom side boards mirror X. Z is the board Z, corrected by the surface
// mesh when one was probed.
func (bl *BoardLocation) PlacementLocation(p *Placement) coord.Location {
	local := p.Location
	if bl.Side == SideBottom {
		local.X = -local.X
		local.Rotation = -local.Rotation
	}

	var res coord.Location
	if bl.Transform != nil {
		res = bl.Transform.Apply(local)
	} else {
		res = local.RotateXY(bl.Location.Rotation)
		res.X += bl.Location.X
		res.Y += bl.Location.Y
		res.Rotation = local.Rotation + bl.Location.Rotation
	}
	res.Z = meshlevel.Correct(bl.surface(), res.X, res.Y, bl.Location.Z)

	return res
}

func (bl *BoardLocation) surface() meshlevel.ZOffsetter {
	if bl.mesh != nil {
		return bl.mesh
	}
	bl.mesh = meshlevel.Flat{}
	if len(bl.Surface) >= 3 {
		m, err := meshlevel.NewMesh(meshlevel.OffsetFrom(bl.Location.Z, bl.Surface))
		if err == nil {
			bl.mesh = m
		}
	}
	return bl.mesh
}

type Panel struct {
	CheckFiducials bool `yaml:"checkFiducials"`
}
