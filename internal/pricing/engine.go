package pricing

import "github.com/shopspring/decimal"

// Money represents a currency value. Amounts may carry fractional units.
type Money = decimal.Decimal

var (
	half    = decimal.NewFromFloat(0.5)
	hundred = decimal.NewFromInt(100)
)

// Line describes a priced cart line used for totals calculation.
type Line struct {
	Price    Money
	Discount Discount
	Quantity int
}

// Totals aggregates pre- and post-discount line values.
type Totals struct {
	TotalPrice         Money
	AdjustedTotalPrice Money
}

// Summary is the order summary shown next to a cart.
type Summary struct {
	Subtotal           Money
	DiscountAmount     Money
	DiscountPercentage int
	DeliveryFee        Money
	Total              Money
}

// Round rounds half up to a whole unit, so 2.5 becomes 3 and -2.5 becomes -2.
func Round(v Money) Money {
	return v.Add(half).Floor()
}

// EffectivePrice returns the per-unit price after the discount is applied.
// Percentage results are rounded, amount results are not. The result stays within [0, price],
// so rounding a fractional price up cannot make the discounted price exceed it.
func EffectivePrice(price Money, d Discount) Money {
	var out Money
	switch d.kind {
	case KindPercentage:
		off := price.Mul(decimal.NewFromInt(int64(d.percentage))).Div(hundred)
		out = Round(price.Sub(off))
	case KindAmount:
		out = price.Sub(d.amount)
	default:
		return price
	}
	if out.IsNegative() {
		return decimal.Zero
	}
	if out.GreaterThan(price) {
		return price
	}
	return out
}

// ComputeTotals sums line values before and after discounts. Lines without a positive quantity are ignored.
func ComputeTotals(lines []Line) Totals {
	total := decimal.Zero
	adjusted := decimal.Zero
	for _, ln := range lines {
		if ln.Quantity <= 0 {
			continue
		}
		qty := decimal.NewFromInt(int64(ln.Quantity))
		total = total.Add(ln.Price.Mul(qty))
		adjusted = adjusted.Add(EffectivePrice(ln.Price, ln.Discount).Mul(qty))
	}
	return Totals{TotalPrice: total, AdjustedTotalPrice: adjusted}
}

// DiscountPercentage returns the rounded share of total saved by discounts.
// An empty total yields 0.
func DiscountPercentage(total, adjusted Money) int {
	if total.IsZero() {
		return 0
	}
	pct := Round(total.Sub(adjusted).Mul(hundred).Div(total))
	return int(pct.IntPart())
}

// Summarize derives the order summary from cart totals. Delivery is free.
func Summarize(t Totals) Summary {
	return Summary{
		Subtotal:           t.TotalPrice,
		DiscountAmount:     Round(t.TotalPrice.Sub(t.AdjustedTotalPrice)),
		DiscountPercentage: DiscountPercentage(t.TotalPrice, t.AdjustedTotalPrice),
		DeliveryFee:        decimal.Zero,
		Total:              Round(t.AdjustedTotalPrice),
	}
}
