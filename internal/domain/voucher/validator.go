package voucher

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/discount"
)

// Validator checks whether a voucher code is usable for an order.
type Validator struct {
	repo Repository
	now  func() time.Time
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// ValidateUsable looks up the voucher for code and checks it against the
// order subtotal. The returned voucher carries the version observed, which
// the caller passes to IncrementUsage.
func (v *Validator) ValidateUsable(ctx context.Context, code string, subtotal decimal.Decimal) (*Voucher, error) {
	vc, err := v.repo.FindByCode(ctx, discount.NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup voucher")
	}
	if err := vc.CheckUsable(v.now(), subtotal); err != nil {
		return nil, err
	}
	return vc, nil
}
