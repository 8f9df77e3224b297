package pricing

import (
	"errors"
	"fmt"
)

// ErrInvalidDiscount is returned when a discount descriptor is out of range.
var ErrInvalidDiscount = errors.New("invalid discount")

// DiscountKind tags the active variant of a Discount.
type DiscountKind uint8

const (
	KindNone DiscountKind = iota
	KindPercentage
	KindAmount
)

func (k DiscountKind) String() string {
	switch k {
	case KindPercentage:
		return "percentage"
	case KindAmount:
		return "amount"
	default:
		return "none"
	}
}

// Discount is a per-unit price reduction: nothing, a whole percentage or a flat amount.
// The zero value is NoDiscount.
type Discount struct {
	kind       DiscountKind
	percentage int
	amount     Money
}

// NoDiscount returns the undiscounted variant.
func NoDiscount() Discount { return Discount{} }

// PercentageOff builds a percentage discount in the range [0,100]. Zero yields NoDiscount.
func PercentageOff(pct int) (Discount, error) {
	if pct < 0 || pct > 100 {
		return Discount{}, fmt.Errorf("percentage %d out of range: %w", pct, ErrInvalidDiscount)
	}
	if pct == 0 {
		return NoDiscount(), nil
	}
	return Discount{kind: KindPercentage, percentage: pct}, nil
}

// AmountOff builds a flat per-unit discount. Zero yields NoDiscount.
func AmountOff(amount Money) (Discount, error) {
	if amount.IsNegative() {
		return Discount{}, fmt.Errorf("amount %s is negative: %w", amount.String(), ErrInvalidDiscount)
	}
	if amount.IsZero() {
		return NoDiscount(), nil
	}
	return Discount{kind: KindAmount, amount: amount}, nil
}

// DiscountFrom converts the storefront's two optional fields into a Discount.
// Percentage is checked first, so it wins when both are set.
func DiscountFrom(percentage int, amount Money) (Discount, error) {
	if percentage != 0 {
		return PercentageOff(percentage)
	}
	return AmountOff(amount)
}

// Kind reports the active variant.
func (d Discount) Kind() DiscountKind { return d.kind }

// Percentage returns the percentage, zero unless Kind is KindPercentage.
func (d Discount) Percentage() int { return d.percentage }

// Amount returns the flat amount, zero unless Kind is KindAmount.
func (d Discount) Amount() Money { return d.amount }

// IsZero reports whether the discount leaves the price unchanged.
func (d Discount) IsZero() bool { return d.kind == KindNone }
