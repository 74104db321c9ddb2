// Package discount holds the pure discount arithmetic: the eligibility
// matcher, the voucher and promotion calculators and the 50% cap enforcer.
// Nothing here performs I/O.
package discount

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/fault"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// Percentage takes a percentage of the base amount.
	Percentage Type = "PERCENTAGE"
	// Fixed takes a fixed monetary amount, never more than the base amount.
	Fixed Type = "FIXED"
)

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	return t == Percentage || t == Fixed
}

// Source tells which rule store a recorded discount came from.
type Source string

const (
	SourceVoucher   Source = "VOUCHER"
	SourcePromotion Source = "PROMOTION"
)

var (
	// ErrNoEligibleItems is returned when a promotion matches no order item.
	ErrNoEligibleItems = fault.New(fault.RuleUnusable, "NO_ELIGIBLE_ITEMS",
		"no order items are eligible for this promotion")
	// ErrCapReached is returned when prior discounts already consumed the cap.
	ErrCapReached = fault.New(fault.CapExhausted, "DISCOUNT_CAP_REACHED",
		"order already has the maximum discount of 50% of its subtotal")
	// ErrUnsupportedType is returned for a rule with an unknown discount type.
	ErrUnsupportedType = fault.New(fault.InvalidInput, "UNSUPPORTED_DISCOUNT_TYPE",
		"unsupported discount type")
)

// Item is an order line as seen by the calculators.
type Item struct {
	ProductID string
	Category  string
	UnitPrice decimal.Decimal
	Quantity  int
}

// LineTotal returns UnitPrice × Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Round rounds a monetary amount half-up to two decimal places. It is the
// only rounding step: call it when a value is about to be persisted.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// NormalizeCode upper-cases and trims a voucher or promotion code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Subtotal returns the sum of line totals.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}
