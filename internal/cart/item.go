package cart

import (
	"slices"
	"strings"

	"github.com/noah-isme/toko-cart/internal/pricing"
)

// Item describes a product variant a shopper wants to buy.
type Item struct {
	ID         string
	Name       string
	SrcURL     string
	Price      pricing.Money
	Discount   pricing.Discount
	Attributes []string
}

// Identity returns the key that decides whether two additions merge into one line.
func (it Item) Identity() Identity {
	return Identity{ID: it.ID, Attributes: it.Attributes}
}

// Size returns the first selected attribute.
func (it Item) Size() string { return it.attribute(0) }

// Color returns the second selected attribute.
func (it Item) Color() string { return it.attribute(1) }

// Slug derives the product page slug from the display name.
func (it Item) Slug() string {
	return strings.Join(strings.Split(it.Name, " "), "-")
}

func (it Item) attribute(i int) string {
	if i < len(it.Attributes) {
		return it.Attributes[i]
	}
	return ""
}

func (it Item) validate() error {
	if strings.TrimSpace(it.ID) == "" {
		return errInvalidItem("id is required")
	}
	if it.Price.IsNegative() {
		return errInvalidItem("price must not be negative")
	}
	return nil
}

// Line is an Item together with the quantity held in the cart.
type Line struct {
	Item
	Quantity int
}

// EffectivePrice returns the discounted unit price.
func (l Line) EffectivePrice() pricing.Money {
	return pricing.EffectivePrice(l.Price, l.Discount)
}

// LineTotal returns the pre-discount value of the line.
func (l Line) LineTotal() pricing.Money {
	return l.Price.Mul(units(l.Quantity))
}

// AdjustedLineTotal returns the post-discount value of the line.
func (l Line) AdjustedLineTotal() pricing.Money {
	return l.EffectivePrice().Mul(units(l.Quantity))
}

func (l Line) clone() Line {
	l.Attributes = slices.Clone(l.Attributes)
	return l
}

func (l Line) pricingLine() pricing.Line {
	return pricing.Line{Price: l.Price, Discount: l.Discount, Quantity: l.Quantity}
}

// Identity is the (id, attributes) pair naming a cart line. Attributes compare element-wise.
type Identity struct {
	ID         string
	Attributes []string
}

// Matches reports whether the identity names the given product variant.
func (id Identity) Matches(productID string, attributes []string) bool {
	return id.ID == productID && slices.Equal(id.Attributes, attributes)
}

// String renders the identity for logs and event keys.
func (id Identity) String() string {
	if len(id.Attributes) == 0 {
		return id.ID
	}
	return id.ID + "[" + strings.Join(id.Attributes, ",") + "]"
}
