package feeder

import (
	"context"
	"testing"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase(t *testing.T) {
	b := NewBase(Config{ID: "F1", PartID: "R1K", Enabled: true, RetryCount: DefaultRetryCount, AutoSkipPick: true})
	assert.Equal(t, "F1", b.Name())
	assert.Equal(t, "R1K", b.PartID())
	assert.Equal(t, 3, b.RetryCount())
	assert.Equal(t, 0, b.PickRetryCount())
	assert.True(t, b.AutoSkipPick())
	assert.False(t, b.AutoSkipAlign())

	assert.True(t, b.Enabled())
	b.SetEnabled(false)
	assert.False(t, b.Enabled())
}

func TestStatic(t *testing.T) {
	l := coord.Location{X: 10, Y: 20, Z: -5}
	s := NewStatic(Config{ID: "F1"}, l)
	require.NoError(t, s.Feed(context.Background(), nil))

	pl, err := s.PickLocation()
	require.NoError(t, err)
	assert.Equal(t, l, pl)
}

func TestTray(t *testing.T) {
	ctx := context.Background()
	tr := NewTray(Config{ID: "T1"}, coord.Location{X: 100, Y: 100, Z: -3}, coord.Location{X: 5, Y: 8}, 2, 2)

	_, err := tr.PickLocation()
	assert.Error(t, err)

	var pockets []coord.Location
	for i := 0; i < 4; i++ {
		require.NoError(t, tr.Feed(ctx, nil))
		l, err := tr.PickLocation()
		require.NoError(t, err)
		pockets = append(pockets, l)
	}
	assert.Equal(t, []coord.Location{
		{X: 100, Y: 100, Z: -3},
		{X: 105, Y: 100, Z: -3},
		{X: 100, Y: 108, Z: -3},
		{X: 105, Y: 108, Z: -3},
	}, pockets)

	err = tr.Feed(ctx, nil)
	assert.True(t, errors.Is(err, ErrEmpty))
	assert.NotEmpty(t, errors.GetAllHints(err))
	assert.Equal(t, 4, tr.FeedCount())

	tr.SetFeedCount(0)
	assert.NoError(t, tr.Feed(ctx, nil))
}
