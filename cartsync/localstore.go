package cartsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tranvanhung2003/digital-world-cart/domain"
)

// storageKey is the fixed name the serialized item list lives under.
const storageKey = "cartItems"

// LocalStore is the client-side staging area for cart edits made before or
// without authentication. Every mutation persists the full item list so a
// restart does not lose the cart. Mutations never fail on business grounds;
// quantities are clamped to non-negative integers.
type LocalStore struct {
	mu      sync.Mutex
	storage Storage
	log     logrus.FieldLogger
	items   []domain.CartItem
}

// NewLocalStore loads any previously persisted items from storage. A corrupt
// payload is treated as an empty cart rather than an error.
func NewLocalStore(storage Storage, log logrus.FieldLogger) (*LocalStore, error) {
	s := &LocalStore{storage: storage, log: log}

	raw, err := storage.Get(storageKey)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to load local cart: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &s.items); err != nil {
		s.log.WithError(err).Warn("discarding corrupt local cart payload")
		s.items = nil
	}
	return s, nil
}

// Add merges the item into an existing line with the same identity
// (product, variant, attributes), summing quantities, or appends a new line.
func (s *LocalStore) Add(item domain.CartItem) {
	if item.Quantity < 0 {
		item.Quantity = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].SameLine(item) {
			s.items[i].Quantity += item.Quantity
			s.persistLocked()
			return
		}
	}

	item.ID = uuid.NewString()
	item.AddedAt = time.Now()
	s.items = append(s.items, item)
	s.persistLocked()
}

// Remove drops the line with the given id. Unknown ids are a no-op.
func (s *LocalStore) Remove(lineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.items {
		if item.ID == lineID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			s.persistLocked()
			return
		}
	}
}

// UpdateQuantity sets the line's quantity, clamped to non-negative. Unknown
// ids are a no-op.
func (s *LocalStore) UpdateQuantity(lineID string, quantity int) {
	if quantity < 0 {
		quantity = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == lineID {
			s.items[i].Quantity = quantity
			s.persistLocked()
			return
		}
	}
}

// Clear empties the store and removes the persisted payload. Idempotent.
func (s *LocalStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	if err := s.storage.Delete(storageKey); err != nil {
		s.log.WithError(err).Warn("failed to clear persisted local cart")
	}
}

// Snapshot returns a deep copy of the current items, in insertion order.
func (s *LocalStore) Snapshot() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CartItem, len(s.items))
	for i, item := range s.items {
		out[i] = item
		if item.Attributes != nil {
			attrs := make(map[string]string, len(item.Attributes))
			for k, v := range item.Attributes {
				attrs[k] = v
			}
			out[i].Attributes = attrs
		}
	}
	return out
}

// Len reports the number of lines (not units) currently staged.
func (s *LocalStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *LocalStore) persistLocked() {
	payload, err := json.Marshal(s.items)
	if err != nil {
		s.log.WithError(err).Warn("failed to marshal local cart")
		return
	}
	if err := s.storage.Set(storageKey, string(payload)); err != nil {
		s.log.WithError(err).Warn("failed to persist local cart")
	}
}
