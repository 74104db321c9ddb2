package discount

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
	zero    = decimal.Zero
)

// VoucherAmount computes the raw (unrounded, uncapped) voucher discount on
// the order subtotal.
func VoucherAmount(t Type, value, subtotal decimal.Decimal) (decimal.Decimal, error) {
	switch t {
	case Percentage:
		return floorAtZero(subtotal.Mul(value).Div(hundred)), nil
	case Fixed:
		return floorAtZero(decimal.Min(value, subtotal)), nil
	default:
		return zero, errors.Wrapf(ErrUnsupportedType, "voucher type %q", t)
	}
}

// PromotionAmount computes the raw promotion discount over eligible items.
// A fixed promotion is applied per unit and capped at each item's own line
// total.
func PromotionAmount(t Type, value decimal.Decimal, eligible []Item) (decimal.Decimal, error) {
	switch t {
	case Percentage:
		return floorAtZero(Subtotal(eligible).Mul(value).Div(hundred)), nil
	case Fixed:
		sum := zero
		for _, item := range eligible {
			qty := decimal.NewFromInt(int64(item.Quantity))
			sum = sum.Add(decimal.Min(value.Mul(qty), item.LineTotal()))
		}
		return floorAtZero(sum), nil
	default:
		return zero, errors.Wrapf(ErrUnsupportedType, "promotion type %q", t)
	}
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
