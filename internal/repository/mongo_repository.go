package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tranvanhung2003/digital-world-cart/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

type mongoRepository struct {
	collection *mongo.Collection
}

func (m *mongoRepository) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	var cart domain.Cart

	filter := bson.M{"owner_id": ownerID}
	err := m.collection.FindOne(ctx, filter).Decode(&cart)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func (m *mongoRepository) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now()

	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	filter := bson.M{"owner_id": cart.OwnerID}
	update := bson.M{"$set": bson.M{
		"owner_id":   cart.OwnerID,
		"items":      cart.Items,
		"created_at": cart.CreatedAt,
		"updated_at": cart.UpdatedAt,
	}}
	opts := options.Update().SetUpsert(true)

	_, err := m.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}

	return nil
}

// AddItem increments the quantity of the matching line, or appends a new line
// with a fresh item id. Line identity is (product, variant, attributes); the
// same product with a different attribute selection gets its own line.
func (m *mongoRepository) AddItem(ctx context.Context, ownerID string, item domain.CartItem) error {
	now := time.Now()
	item.AddedAt = now

	cart, err := m.GetCart(ctx, ownerID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			item.ID = uuid.NewString()
			cart = &domain.Cart{
				OwnerID:   ownerID,
				Items:     []domain.CartItem{item},
				CreatedAt: now,
				UpdatedAt: now,
			}
			return m.UpsertCart(ctx, cart)
		}
		return fmt.Errorf("failed to check existing cart: %w", err)
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].SameLine(item) {
			cart.Items[i].Quantity += item.Quantity
			cart.Items[i].UnitPrice = item.UnitPrice
			cart.Items[i].AddedAt = now
			merged = true
			break
		}
	}
	if !merged {
		item.ID = uuid.NewString()
		cart.Items = append(cart.Items, item)
	}

	return m.UpsertCart(ctx, cart)
}

func (m *mongoRepository) UpdateItemQuantity(ctx context.Context, ownerID, itemID string, quantity int) error {
	filter := bson.M{
		"owner_id":      ownerID,
		"items.item_id": itemID,
	}

	update := bson.M{
		"$set": bson.M{
			"items.$[elem].quantity": quantity,
			"updated_at":             time.Now(),
		},
	}

	arrayFilters := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.item_id": itemID},
		},
	})

	result, err := m.collection.UpdateOne(ctx, filter, update, arrayFilters)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *mongoRepository) RemoveItem(ctx context.Context, ownerID, itemID string) error {
	filter := bson.M{"owner_id": ownerID}
	update := bson.M{
		"$pull": bson.M{
			"items": bson.M{"item_id": itemID},
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *mongoRepository) DeleteCart(ctx context.Context, ownerID string) error {
	filter := bson.M{"owner_id": ownerID}

	result, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *mongoRepository) MergeCarts(ctx context.Context, fromOwnerID, toOwnerID string) error {
	source, err := m.GetCart(ctx, fromOwnerID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil // nothing to merge
		}
		return fmt.Errorf("failed to load source cart: %w", err)
	}

	target, err := m.GetCart(ctx, toOwnerID)
	if err != nil {
		if !errors.Is(err, ErrCartNotFound) {
			return fmt.Errorf("failed to load target cart: %w", err)
		}
		target = &domain.Cart{OwnerID: toOwnerID}
	}

	now := time.Now()
	for _, item := range source.Items {
		merged := false
		for i := range target.Items {
			if target.Items[i].SameLine(item) {
				target.Items[i].Quantity += item.Quantity
				target.Items[i].AddedAt = now
				merged = true
				break
			}
		}
		if !merged {
			item.ID = uuid.NewString()
			item.AddedAt = now
			target.Items = append(target.Items, item)
		}
	}

	if err := m.UpsertCart(ctx, target); err != nil {
		return fmt.Errorf("failed to save merged cart: %w", err)
	}

	if err := m.DeleteCart(ctx, fromOwnerID); err != nil && !errors.Is(err, ErrCartNotFound) {
		return fmt.Errorf("failed to delete source cart: %w", err)
	}

	return nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection("carts"),
	}
}

// EnsureIndexes creates the cart collection indexes. The unique owner index
// backs the one-cart-per-owner guarantee, so this must run before serving.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	repo := &mongoRepository{collection: db.Collection("carts")}
	return repo.CreateIndexes(ctx)
}
