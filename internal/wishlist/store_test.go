package wishlist

import (
	"testing"

	"github.com/blackmoney/storefront/internal/localstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	backing, err := localstore.New(t.TempDir())
	require.NoError(t, err)
	s, err := New(backing)
	require.NoError(t, err)
	return s
}

func TestAddDeduplicates(t *testing.T) {
	s := newStore(t)
	item := Item{ProductID: "A", Name: "Shirt", Price: decimal.NewFromInt(499)}

	require.NoError(t, s.Add(item))
	require.NoError(t, s.Add(item))

	assert.Len(t, s.Items(), 1)
	assert.True(t, s.Has("A"))
}

func TestRemove(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Add(Item{ProductID: "A"}))
	require.NoError(t, s.Add(Item{ProductID: "B"}))

	require.NoError(t, s.Remove("A"))

	assert.False(t, s.Has("A"))
	assert.True(t, s.Has("B"))
	assert.NoError(t, s.Remove("Z")) // missing is a no-op
}

func TestSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	backing, err := localstore.New(dir)
	require.NoError(t, err)
	s, err := New(backing)
	require.NoError(t, err)
	require.NoError(t, s.Add(Item{ProductID: "A", Name: "Shirt"}))

	backing2, err := localstore.New(dir)
	require.NoError(t, err)
	reloaded, err := New(backing2)
	require.NoError(t, err)

	assert.True(t, reloaded.Has("A"))
}
