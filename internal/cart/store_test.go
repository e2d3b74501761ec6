package cart

import (
	"testing"

	"github.com/blackmoney/storefront/internal/localstore"
	"github.com/blackmoney/storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	backing, err := localstore.New(t.TempDir())
	require.NoError(t, err)
	store, err := New(backing)
	require.NoError(t, err)
	return store
}

func lineItem(productID, size, color string, qty int) models.CartLineItem {
	return models.CartLineItem{
		ProductID: productID,
		SellerID:  "seller-1",
		Name:      "Test Shirt",
		UnitPrice: decimal.NewFromInt(499),
		Variant:   models.Variant{Size: size, Color: color},
		Quantity:  qty,
	}
}

func TestAddMergesSameVariant(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Add(lineItem("A", "M", "red", 2)))
	require.NoError(t, s.Add(lineItem("A", "M", "red", 3)))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
}

func TestAddKeepsDistinctVariantsSeparate(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Add(lineItem("A", "M", "red", 1)))
	require.NoError(t, s.Add(lineItem("A", "L", "red", 1)))
	require.NoError(t, s.Add(lineItem("A", "M", "blue", 1)))

	assert.Equal(t, 3, s.Len())
}

func TestNoDuplicateCompoundKeys(t *testing.T) {
	s := newStore(t)

	ops := []models.CartLineItem{
		lineItem("A", "M", "red", 1),
		lineItem("A", "", "", 1),
		lineItem("A", "default", "default", 1), // same entity as the empty variant
		lineItem("B", "M", "red", 2),
		lineItem("A", "M", "red", 4),
	}
	for _, op := range ops {
		require.NoError(t, s.Add(op))
	}
	require.NoError(t, s.UpdateQuantity("A", models.Variant{}, 1))
	require.NoError(t, s.Remove("B", models.Variant{Size: "M", Color: "red"}))

	seen := map[string]bool{}
	for _, item := range s.Items() {
		v := item.Variant.Normalize()
		key := item.ProductID + "|" + v.Size + "|" + v.Color
		assert.False(t, seen[key], "duplicate compound key %s", key)
		seen[key] = true
	}
}

func TestUpdateQuantityClampsAtOne(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Add(lineItem("A", "M", "red", 3)))

	require.NoError(t, s.UpdateQuantity("A", models.Variant{Size: "M", Color: "red"}, -100))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestUpdateQuantityTouchesOnlyMatchingVariant(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Add(lineItem("A", "M", "red", 2)))
	require.NoError(t, s.Add(lineItem("A", "L", "red", 2)))

	require.NoError(t, s.UpdateQuantity("A", models.Variant{Size: "M", Color: "red"}, 1))

	for _, item := range s.Items() {
		if item.Variant.Size == "M" {
			assert.Equal(t, 3, item.Quantity)
		} else {
			assert.Equal(t, 2, item.Quantity)
		}
	}
}

func TestUpdateQuantityMissingEntityIsNoOp(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Add(lineItem("A", "M", "red", 2)))

	require.NoError(t, s.UpdateQuantity("Z", models.Variant{Size: "M", Color: "red"}, 5))

	assert.Equal(t, 2, s.Items()[0].Quantity)
}

func TestRemoveDeletesExactlyOneVariant(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Add(lineItem("A", "M", "red", 2)))
	require.NoError(t, s.Add(lineItem("A", "L", "red", 1)))

	require.NoError(t, s.Remove("A", models.Variant{Size: "M", Color: "red"}))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "L", items[0].Variant.Size)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestRemoveMissingKeyIsNoOp(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Add(lineItem("A", "M", "red", 2)))

	require.NoError(t, s.Remove("A", models.Variant{Size: "XL", Color: "red"}))

	assert.Equal(t, 1, s.Len())
}

func TestSubtotal(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Add(lineItem("A", "M", "red", 2))) // 2 x 499
	require.NoError(t, s.Add(lineItem("B", "L", "blue", 1)))

	assert.True(t, s.Subtotal().Equal(decimal.NewFromInt(1497)))
}

func TestCartSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	backing, err := localstore.New(dir)
	require.NoError(t, err)

	s, err := New(backing)
	require.NoError(t, err)
	require.NoError(t, s.Add(lineItem("A", "M", "red", 2)))

	reloadedBacking, err := localstore.New(dir)
	require.NoError(t, err)
	reloaded, err := New(reloadedBacking)
	require.NoError(t, err)

	items := reloaded.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "A", items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.True(t, items[0].UnitPrice.Equal(decimal.NewFromInt(499)))
}

func TestClear(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Add(lineItem("A", "M", "red", 2)))

	require.NoError(t, s.Clear())

	assert.Empty(t, s.Items())
}
