package discount

import "github.com/shopspring/decimal"

// Ceiling returns the largest total discount an order with the given
// subtotal may carry: half the subtotal, truncated to whole cents.
func Ceiling(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(half).Truncate(2)
}

// Cap limits a proposed discount so that current + proposed never exceeds
// Ceiling(subtotal). When the cap binds it returns the remaining headroom;
// when there is no headroom left it fails with ErrCapReached and no partial
// discount is given.
func Cap(subtotal, current, proposed decimal.Decimal) (decimal.Decimal, error) {
	limit := Ceiling(subtotal)
	if current.Add(proposed).LessThanOrEqual(limit) {
		return proposed, nil
	}
	capped := limit.Sub(current)
	if !capped.IsPositive() {
		return zero, ErrCapReached
	}
	return capped, nil
}
