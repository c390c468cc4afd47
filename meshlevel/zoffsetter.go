package meshlevel

// A ZOffsetter gives a Z correction for a machine XY position.
type ZOffsetter interface {
	OffsetZ(x, y float64) (bool, float64)
}

// Flat is a ZOffsetter for boards with no surface data.
type Flat struct{}

func (Flat) OffsetZ(x, y float64) (bool, float64) {
	return false, 0
}
