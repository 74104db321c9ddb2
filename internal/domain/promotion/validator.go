package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/voucher-engine/internal/domain/discount"
)

// Validator checks whether a promotion code is usable.
type Validator struct {
	repo Repository
	now  func() time.Time
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// ValidateUsable looks up the promotion for code and checks its status,
// expiry and usage. Item eligibility is checked when the discount is
// computed.
func (v *Validator) ValidateUsable(ctx context.Context, code string) (*Promotion, error) {
	p, err := v.repo.FindByCode(ctx, discount.NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup promotion")
	}
	if err := p.CheckUsable(v.now()); err != nil {
		return nil, err
	}
	return p, nil
}
