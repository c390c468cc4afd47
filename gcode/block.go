package gcode

import (
	"strings"

	"github.com/mastercactapus/gpnp/errors"
)

// Block is one line of g-code.
type Block []Word

func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}
func (b Block) SetArg(w byte, val float64) {
	for i, g := range b {
		if g.W == w {
			b[i].Arg = val
			return
		}
	}
}

func (b Block) Clone() Block {
	c := make(Block, len(b))
	copy(c, b)
	return c
}

func (b Block) String() string {
	var sb strings.Builder
	for _, w := range b {
		sb.WriteString(w.String())
	}
	return sb.String()
}

// Validate checks for invalid letters and repeated non-G words.
func (b Block) Validate() error {
	var seen [256]bool
	for _, g := range b {
		if !g.IsValid() {
			return errors.New("invalid word in block")
		}
		if g.W != 'G' && g.W != 'M' && seen[g.W] {
			return errors.Newf("word %c was repeated in a block", g.W)
		}
		seen[g.W] = true
	}

	return nil
}
