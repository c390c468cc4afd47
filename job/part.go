package job

import (
	"sort"

	"github.com/mastercactapus/gpnp/errors"
)

// ErrNotFound is returned when a referenced part or board does not exist.
var ErrNotFound = errors.New("not found")

// Part is a component type that can be placed.
type Part struct {
	ID        string  `yaml:"id" mapstructure:"id"`
	Name      string  `yaml:"name,omitempty" mapstructure:"name"`
	PackageID string  `yaml:"package" mapstructure:"package"`
	Height    float64 `yaml:"height" mapstructure:"height"`

	// Speed is a motion speed factor in (0,1]. Zero means full speed.
	Speed float64 `yaml:"speed,omitempty" mapstructure:"speed"`
}

// MotionSpeed returns the speed factor for moves carrying the part.
func (p *Part) MotionSpeed() float64 {
	if p == nil || p.Speed <= 0 || p.Speed > 1 {
		return 1
	}
	return p.Speed
}

// PartLibrary looks up parts by ID.
type PartLibrary map[string]*Part

// NewPartLibrary indexes parts by ID.
func NewPartLibrary(parts []*Part) PartLibrary {
	lib := make(PartLibrary, len(parts))
	for _, p := range parts {
		lib[p.ID] = p
	}
	return lib
}

func (lib PartLibrary) Get(id string) (*Part, error) {
	p := lib[id]
	if p == nil {
		return nil, errors.Wrapf(ErrNotFound, "part %s", id)
	}
	return p, nil
}

// Parts returns every part sorted by ID.
func (lib PartLibrary) Parts() []*Part {
	res := make([]*Part, 0, len(lib))
	for _, p := range lib {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
