package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type productDoc struct {
	ID       string       `bson:"_id"`
	Price    float64      `bson:"price"`
	Stock    int          `bson:"stock"`
	Variants []variantDoc `bson:"variants,omitempty"`
}

type variantDoc struct {
	VariantID string  `bson:"variant_id"`
	Price     float64 `bson:"price"`
	Stock     int     `bson:"stock"`
}

type mongoCatalog struct {
	collection *mongo.Collection
}

func NewMongoCatalog(db *mongo.Database) Catalog {
	return &mongoCatalog{collection: db.Collection("products")}
}

func (c *mongoCatalog) Lookup(ctx context.Context, productID, variantID string) (Availability, error) {
	var doc productDoc

	err := c.collection.FindOne(ctx, bson.M{"_id": productID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Availability{}, ErrProductNotFound
		}
		return Availability{}, fmt.Errorf("failed to look up product: %w", err)
	}

	if variantID == "" {
		return Availability{UnitPrice: doc.Price, Stock: doc.Stock}, nil
	}

	for _, v := range doc.Variants {
		if v.VariantID == variantID {
			return Availability{UnitPrice: v.Price, Stock: v.Stock}, nil
		}
	}

	// A variant id the product no longer carries is the same as a missing
	// product from the caller's point of view.
	return Availability{}, ErrProductNotFound
}
