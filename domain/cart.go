package domain

import "time"

// Cart is the server-authoritative cart for one owner. The owner is either an
// authenticated user id or a guest session id; there is at most one active
// cart per owner.
type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"id,omitempty"`
	OwnerID   string     `bson:"owner_id" json:"owner_id"`
	Items     []CartItem `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

type CartItem struct {
	ID         string            `bson:"item_id,omitempty" json:"item_id,omitempty"`
	ProductID  string            `bson:"product_id" json:"product_id"`
	VariantID  string            `bson:"variant_id,omitempty" json:"variant_id,omitempty"`
	Attributes map[string]string `bson:"attributes,omitempty" json:"attributes,omitempty"`
	Quantity   int               `bson:"quantity" json:"quantity"`
	UnitPrice  float64           `bson:"unit_price" json:"unit_price"`
	AddedAt    time.Time         `bson:"added_at" json:"added_at"`
}

// SameLine reports whether two items represent the same purchasable
// configuration: product, variant and the full attribute selection must all
// match. Two lines for the same product with different attributes stay
// distinct.
func (i CartItem) SameLine(other CartItem) bool {
	if i.ProductID != other.ProductID || i.VariantID != other.VariantID {
		return false
	}
	if len(i.Attributes) != len(other.Attributes) {
		return false
	}
	for k, v := range i.Attributes {
		if ov, ok := other.Attributes[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// TotalItems is the sum of line quantities.
func (c *Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c *Cart) Subtotal() float64 {
	subtotal := 0.0
	for _, item := range c.Items {
		subtotal += item.UnitPrice * float64(item.Quantity)
	}
	return subtotal
}
