package voucher

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/discount"
)

// Input holds the fields of a new voucher. An empty Code asks the service
// to generate one.
type Input struct {
	Code           string           `json:"code"`
	DiscountType   discount.Type    `json:"discountType"`
	DiscountValue  decimal.Decimal  `json:"discountValue"`
	ExpirationDate time.Time        `json:"expirationDate"`
	UsageLimit     int              `json:"usageLimit"`
	MinOrderValue  *decimal.Decimal `json:"minOrderValue"`
	IsActive       *bool            `json:"isActive"`
}

// Patch holds optional changes to an existing voucher. Version, when set,
// must equal the stored version.
type Patch struct {
	DiscountType   *discount.Type
	DiscountValue  *decimal.Decimal
	ExpirationDate *time.Time
	UsageLimit     *int
	MinOrderValue  *decimal.Decimal
	ClearMinOrder  bool
	IsActive       *bool
	Version        *int64
}

// Service implements voucher administration and validation.
type Service struct {
	repo      Repository
	validator *Validator
	now       func() time.Time
}

// NewService creates a voucher Service backed by the given Repository.
func NewService(repo Repository) *Service {
	return &Service{
		repo:      repo,
		validator: NewValidator(repo),
		now:       time.Now,
	}
}

// Create validates in and stores a new active voucher with zero usage.
func (s *Service) Create(ctx context.Context, in Input) (*Voucher, error) {
	in.Code = discount.NormalizeCode(in.Code)
	if in.Code == "" {
		in.Code = GenerateCode()
	}
	now := s.now()
	if err := validateInput(in, now); err != nil {
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	v := &Voucher{
		ID:             uuid.NewString(),
		Code:           in.Code,
		DiscountType:   in.DiscountType,
		DiscountValue:  in.DiscountValue,
		ExpirationDate: in.ExpirationDate,
		UsageLimit:     in.UsageLimit,
		MinOrderValue:  in.MinOrderValue,
		IsActive:       active,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, v); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, ErrDuplicateCode
		}
		return nil, errors.Wrap(err, "create voucher")
	}
	return v, nil
}

// Get returns a live voucher by ID.
func (s *Service) Get(ctx context.Context, id string) (*Voucher, error) {
	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get voucher")
	}
	return v, nil
}

// List returns one page of live vouchers.
func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	f.Page, f.Limit = discount.NormalizePage(f.Page, f.Limit)
	f.CodePrefix = discount.NormalizeCode(f.CodePrefix)

	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list vouchers")
	}
	return &Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Update applies p to the voucher under optimistic locking.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Voucher, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Version != nil && *p.Version != v.Version {
		return nil, ErrVersionConflict
	}

	if p.DiscountType != nil {
		v.DiscountType = *p.DiscountType
	}
	if p.DiscountValue != nil {
		v.DiscountValue = *p.DiscountValue
	}
	now := s.now()
	if discount.Reactivates(!now.Before(v.ExpirationDate), p.ExpirationDate, p.IsActive, now) {
		v.IsActive = true
	}
	if p.ExpirationDate != nil {
		v.ExpirationDate = *p.ExpirationDate
	}
	if p.UsageLimit != nil {
		v.UsageLimit = *p.UsageLimit
	}
	if p.ClearMinOrder {
		v.MinOrderValue = nil
	} else if p.MinOrderValue != nil {
		v.MinOrderValue = p.MinOrderValue
	}
	if p.IsActive != nil {
		v.IsActive = *p.IsActive
	}

	err = validation.ValidateStruct(v,
		validation.Field(&v.DiscountType, discount.TypeRules...),
		validation.Field(&v.DiscountValue, discount.ValueRule(v.DiscountType)),
		validation.Field(&v.ExpirationDate, validation.When(p.ExpirationDate != nil, discount.FutureRule(now))),
		validation.Field(&v.UsageLimit, validation.Min(1)),
		validation.Field(&v.MinOrderValue, discount.NonNegativeRule),
	)
	if err != nil {
		return nil, discount.InputError(err)
	}

	v.UpdatedAt = now
	if err := s.repo.Update(ctx, v); err != nil {
		switch {
		case errors.Is(err, ErrVersionConflict):
			return nil, ErrVersionConflict
		case errors.Is(err, ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "update voucher")
	}
	return v, nil
}

// Delete soft-deletes an unused voucher.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return ErrNotFound
		case errors.Is(err, ErrInUse):
			return ErrInUse
		}
		return errors.Wrap(err, "delete voucher")
	}
	return nil
}

// Validate checks that code is usable for an order with the given subtotal.
func (s *Service) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Voucher, error) {
	return s.validator.ValidateUsable(ctx, code, subtotal)
}

// DeactivateExpired switches off vouchers whose expiration has passed.
func (s *Service) DeactivateExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeactivateExpired(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "deactivate expired vouchers")
	}
	return n, nil
}

// GenerateCode returns a random 8 character uppercase alphanumeric code.
func GenerateCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
}

func validateInput(in Input, now time.Time) error {
	return discount.InputError(validation.ValidateStruct(&in,
		validation.Field(&in.Code, discount.CodeRules...),
		validation.Field(&in.DiscountType, discount.TypeRules...),
		validation.Field(&in.DiscountValue, discount.ValueRule(in.DiscountType)),
		validation.Field(&in.ExpirationDate, validation.Required, discount.FutureRule(now)),
		validation.Field(&in.UsageLimit, validation.Required, validation.Min(1)),
		validation.Field(&in.MinOrderValue, discount.NonNegativeRule),
	))
}

