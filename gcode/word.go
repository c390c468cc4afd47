package gcode

import (
	"strconv"
	"strings"
)

// Word is a single letter/number pair, like X12.5.
type Word struct {
	W   byte
	Arg float64
}

// IsAxis reports if w addresses a motion axis. A is the nozzle rotation.
func (w Word) IsAxis() bool {
	switch w.W {
	case 'X', 'Y', 'Z', 'A':
		return true
	}
	return false
}

func (w Word) IsValid() bool {
	return w.W >= 'A' && w.W <= 'Z'
}

func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

func (w Word) String() string {
	return string(w.W) + formatFloat(w.Arg, 4)
}
