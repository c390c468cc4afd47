package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	b, err := Parse("G0 X1.5 y-2 ; move\n\nM8\n")
	require.NoError(t, err)
	assert.Equal(t, []Block{
		{{W: 'G', Arg: 0}, {W: 'X', Arg: 1.5}, {W: 'Y', Arg: -2}},
		{{W: 'M', Arg: 8}},
	}, b)

	_, err = Parse("$H")
	assert.Error(t, err)
}

func TestBlock_String(t *testing.T) {
	b := Block{{W: 'G', Arg: 0}, {W: 'X', Arg: 10}, {W: 'Y', Arg: -0.00001}, {W: 'A', Arg: 12.34567}}
	assert.Equal(t, "G0X10Y0A12.3457", b.String())
}

func TestBlock_Validate(t *testing.T) {
	assert.NoError(t, Block{{W: 'G', Arg: 53}, {W: 'G', Arg: 0}, {W: 'X', Arg: 1}}.Validate())
	assert.Error(t, Block{{W: 'X', Arg: 1}, {W: 'X', Arg: 2}}.Validate())
	assert.Error(t, Block{{W: '$'}}.Validate())
}
