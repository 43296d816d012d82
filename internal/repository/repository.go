package repository

import (
	"context"

	"github.com/tranvanhung2003/digital-world-cart/domain"
)

// CartRepository defines the interface for cart data operations.
// Consumers define this interface, not the MongoDB implementation.
type CartRepository interface {
	GetCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	AddItem(ctx context.Context, ownerID string, item domain.CartItem) error
	UpdateItemQuantity(ctx context.Context, ownerID, itemID string, quantity int) error
	RemoveItem(ctx context.Context, ownerID, itemID string) error
	DeleteCart(ctx context.Context, ownerID string) error
	// MergeCarts folds every line of fromOwner's cart into toOwner's cart,
	// summing quantities on matching lines, then deletes fromOwner's cart.
	// A missing source cart is a no-op.
	MergeCarts(ctx context.Context, fromOwnerID, toOwnerID string) error
}
