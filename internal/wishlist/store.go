package wishlist

import (
	"errors"
	"fmt"
	"sync"

	"github.com/blackmoney/storefront/internal/localstore"
	"github.com/shopspring/decimal"
)

const storageKey = "wishlist"

// Item is a saved product snapshot.
type Item struct {
	ProductID string          `json:"id"`
	SellerID  string          `json:"seller_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageRef  string          `json:"image,omitempty"`
}

// Store keeps the customer's wishlist, persisted the same way as the
// cart. Entries are deduplicated by product.
type Store struct {
	mu      sync.Mutex
	items   []Item
	backing *localstore.Store
}

func New(backing *localstore.Store) (*Store, error) {
	s := &Store{backing: backing}

	err := backing.Get(storageKey, &s.items)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return nil, fmt.Errorf("failed to load wishlist: %w", err)
	}
	return s, nil
}

// Add saves an item. Adding an already-saved product is a no-op.
func (s *Store) Add(item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.ProductID == item.ProductID {
			return nil
		}
	}
	s.items = append(s.items, item)
	return s.persist()
}

// Remove drops the product from the wishlist. Missing is a no-op.
func (s *Store) Remove(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.items {
		if item.ProductID == productID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return s.persist()
		}
	}
	return nil
}

// Has reports whether the product is saved.
func (s *Store) Has(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// Items returns a copy of the saved products.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) persist() error {
	items := s.items
	if items == nil {
		items = []Item{}
	}
	if err := s.backing.Set(storageKey, items); err != nil {
		return fmt.Errorf("failed to persist wishlist: %w", err)
	}
	return nil
}
