package gcode

import (
	"io"
	"testing"

	"github.com/mastercactapus/gpnp/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a nozzle move followed by a dwell, as sent to grbl
var moveBlocks = []Block{
	{{W: 'G', Arg: 0}, {W: 'X', Arg: 110}, {W: 'Y', Arg: 55}, {W: 'Z', Arg: -9.5}, {W: 'F', Arg: 3000}},
	{{W: 'G', Arg: 4}, {W: 'P', Arg: 0.05}},
}

func TestBuffer_Read(t *testing.T) {
	data, err := io.ReadAll(NewBuffer(&BlocksReader{Blocks: moveBlocks}))
	require.NoError(t, err)
	assert.Equal(t, "G0X110Y55Z-9.5F3000\nG4P0.05\n", string(data))
}

func TestBuffer_Read_Short(t *testing.T) {
	b := NewBuffer(&BlocksReader{Blocks: moveBlocks})

	buf := make([]byte, 12)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "G0X110Y55Z-9", string(buf[:n]))

	n, err = b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, ".5F3000\nG4P0", string(buf[:n]))

	n, err = b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, ".05\n", string(buf[:n]))

	n, err = b.Read(buf)
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, n)
}

type failReader struct {
	blocks []Block
	err    error
}

func (r *failReader) Read() (Block, error) {
	if len(r.blocks) == 0 {
		return nil, r.err
	}
	b := r.blocks[0]
	r.blocks = r.blocks[1:]
	return b, nil
}

func TestBuffer_Read_Error(t *testing.T) {
	bad := errors.New("bad block")
	b := NewBuffer(&failReader{blocks: moveBlocks[:1], err: bad})

	data, err := io.ReadAll(b)
	assert.Equal(t, bad, err)
	assert.Equal(t, "G0X110Y55Z-9.5F3000\n", string(data))
}
