package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/fault"
	"github.com/xenking/voucher-engine/internal/domain/promotion"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
)

// Resolution is a usable rule for a code and its uncapped discount amount.
type Resolution struct {
	Source  discount.Source
	RuleID  string
	Version int64
	Amount  decimal.Decimal
}

// Resolver finds the rule a code refers to. Vouchers are tried first, then
// promotions.
type Resolver struct {
	vouchers   *voucher.Validator
	promotions *promotion.Validator
}

// NewResolver creates a Resolver over the two rule validators.
func NewResolver(vouchers *voucher.Validator, promotions *promotion.Validator) *Resolver {
	return &Resolver{vouchers: vouchers, promotions: promotions}
}

// Resolve returns the rule that applies to o for code. When neither store
// yields a usable rule the error is ErrCodeNotFound if no rule has the code,
// the voucher's error if a voucher has it, and the promotion's otherwise.
func (r *Resolver) Resolve(ctx context.Context, o *Order, code string) (*Resolution, error) {
	res, voucherErr := r.resolveVoucher(ctx, o, code)
	if voucherErr == nil {
		return res, nil
	}
	if fault.KindOf(voucherErr) == fault.Internal {
		return nil, voucherErr
	}

	res, promoErr := r.resolvePromotion(ctx, o, code)
	if promoErr == nil {
		return res, nil
	}
	if fault.KindOf(promoErr) == fault.Internal {
		return nil, promoErr
	}

	voucherMissing := errors.Is(voucherErr, voucher.ErrNotFound)
	promoMissing := errors.Is(promoErr, promotion.ErrNotFound)
	switch {
	case voucherMissing && promoMissing:
		return nil, ErrCodeNotFound
	case !voucherMissing:
		return nil, voucherErr
	default:
		return nil, promoErr
	}
}

func (r *Resolver) resolveVoucher(ctx context.Context, o *Order, code string) (*Resolution, error) {
	v, err := r.vouchers.ValidateUsable(ctx, code, o.Subtotal)
	if err != nil {
		return nil, err
	}
	amount, err := discount.VoucherAmount(v.DiscountType, v.DiscountValue, o.Subtotal)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		Source:  discount.SourceVoucher,
		RuleID:  v.ID,
		Version: v.Version,
		Amount:  amount,
	}, nil
}

func (r *Resolver) resolvePromotion(ctx context.Context, o *Order, code string) (*Resolution, error) {
	p, err := r.promotions.ValidateUsable(ctx, code)
	if err != nil {
		return nil, err
	}
	eligible, err := p.Eligible(o.DiscountItems())
	if err != nil {
		return nil, err
	}
	amount, err := discount.PromotionAmount(p.DiscountType, p.DiscountValue, eligible)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		Source:  discount.SourcePromotion,
		RuleID:  p.ID,
		Version: p.Version,
		Amount:  amount,
	}, nil
}
