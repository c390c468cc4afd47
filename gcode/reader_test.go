package gcode

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocksReader(t *testing.T) {
	r := &BlocksReader{Blocks: moveBlocks}

	for _, want := range moveBlocks {
		b, err := r.Read()
		require.NoError(t, err)
		assert.Equal(t, want, b)
	}

	for i := 0; i < 2; i++ {
		b, err := r.Read()
		assert.Equal(t, io.EOF, err)
		assert.Nil(t, b)
	}

	empty := &BlocksReader{}
	_, err := empty.Read()
	assert.Equal(t, io.EOF, err)
}
