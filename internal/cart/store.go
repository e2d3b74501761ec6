package cart

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/blackmoney/storefront/internal/localstore"
	"github.com/blackmoney/storefront/internal/models"
	"github.com/shopspring/decimal"
)

const storageKey = "cart"

// Store owns the customer's cart line items. Identity of a line item is
// the compound key (product, size, color): distinct variants of the same
// product are independent entities. All operations are total over their
// domain; every mutation persists the full collection.
type Store struct {
	mu      sync.Mutex
	items   []models.CartLineItem
	backing *localstore.Store
}

// New loads any previously persisted cart from the backing store.
func New(backing *localstore.Store) (*Store, error) {
	s := &Store{backing: backing}

	err := backing.Get(storageKey, &s.items)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return s, nil
}

// Add appends a new line item, or increments the quantity of an existing
// entity with the same (product, variant) key.
func (s *Store) Add(item models.CartLineItem) error {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	item.Variant = item.Variant.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ProductID == item.ProductID && s.items[i].Variant.Equal(item.Variant) {
			s.items[i].Quantity += item.Quantity
			return s.persist()
		}
	}
	s.items = append(s.items, item)
	return s.persist()
}

// UpdateQuantity applies delta to the entity matching the full compound
// key, clamping the result so quantity never drops below 1. Non-matching
// entities are untouched; a missing entity is a silent no-op.
func (s *Store) UpdateQuantity(productID string, variant models.Variant, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ProductID == productID && s.items[i].Variant.Equal(variant) {
			s.items[i].Quantity += delta
			if s.items[i].Quantity < 1 {
				s.items[i].Quantity = 1
			}
			return s.persist()
		}
	}
	return nil
}

// Remove deletes exactly the one entity matching the full compound key.
// Other variants of the same product persist. Missing keys are a no-op.
func (s *Store) Remove(productID string, variant models.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ProductID == productID && s.items[i].Variant.Equal(variant) {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return s.persist()
		}
	}
	return nil
}

// Items returns a copy of the current line items.
func (s *Store) Items() []models.CartLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.CartLineItem, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of line items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Subtotal is the sum of line-item prices before shipping, tax or
// discount.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	subtotal := decimal.Zero
	for _, item := range s.items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return subtotal
}

// Clear empties the cart. Called in bulk when an order is successfully
// placed.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	return s.persist()
}

func (s *Store) persist() error {
	items := s.items
	if items == nil {
		items = []models.CartLineItem{}
	}
	if err := s.backing.Set(storageKey, items); err != nil {
		log.Printf("cart persist error: %v", err)
		return fmt.Errorf("failed to persist cart: %w", err)
	}
	return nil
}
