package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var errTest = New("test")

func TestWrap(t *testing.T) {
	err := Wrapf(errTest, "feed %s", "F1")
	assert.EqualError(t, err, "feed F1: test")
	assert.True(t, Is(err, errTest))
}

func TestWithHint(t *testing.T) {
	err := WithHint(errTest, "disable the feeder")
	assert.Equal(t, "disable the feeder", FlattenHints(err))
	assert.True(t, Is(err, errTest))
}
