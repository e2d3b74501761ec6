package localstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	in := []string{"a", "b", "c"}
	require.NoError(t, store.Set("cart", in))

	var out []string
	require.NoError(t, store.Get("cart", &out))
	assert.Equal(t, in, out)
}

func TestGetMissingKey(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	var out []string
	err = store.Get("cart", &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetOverwrites(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("cart", []int{1, 2, 3}))
	require.NoError(t, store.Set("cart", []int{9}))

	var out []int
	require.NoError(t, store.Get("cart", &out))
	assert.Equal(t, []int{9}, out)
}

func TestRecordsCarryVersionEnvelope(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("cart", []int{1}))

	raw, err := os.ReadFile(filepath.Join(dir, "cart.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"data":[1]}`, string(raw))
}

func TestReadsLegacyUnversionedRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cart.json"), []byte(`["x","y"]`), 0o644))

	store, err := New(dir)
	require.NoError(t, err)

	var out []string
	require.NoError(t, store.Get("cart", &out))
	assert.Equal(t, []string{"x", "y"}, out)
}

func TestRejectsFutureVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cart.json"), []byte(`{"version":99,"data":[]}`), 0o644))

	store, err := New(dir)
	require.NoError(t, err)

	var out []string
	assert.Error(t, store.Get("cart", &out))
}

func TestDeleteMissingKeyIsNoOp(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Delete("cart"))
}
