package promotion

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

// Input holds the fields of a new promotion. An empty Code asks the
// service to generate one.
type Input struct {
	Code               string          `json:"code"`
	DiscountType       discount.Type   `json:"discountType"`
	DiscountValue      decimal.Decimal `json:"discountValue"`
	ExpirationDate     time.Time       `json:"expirationDate"`
	UsageLimit         int             `json:"usageLimit"`
	EligibleCategories []string        `json:"eligibleCategories"`
	EligibleItems      []string        `json:"eligibleItems"`
	IsActive           *bool           `json:"isActive"`
}

// Patch holds optional changes to an existing promotion. A non-nil slice
// replaces the stored list.
type Patch struct {
	DiscountType       *discount.Type
	DiscountValue      *decimal.Decimal
	ExpirationDate     *time.Time
	UsageLimit         *int
	EligibleCategories []string
	EligibleItems      []string
	IsActive           *bool
	Version            *int64
}

// Service implements promotion administration and validation.
type Service struct {
	repo      Repository
	validator *Validator
	now       func() time.Time
}

// NewService creates a promotion Service backed by the given Repository.
func NewService(repo Repository) *Service {
	return &Service{
		repo:      repo,
		validator: NewValidator(repo),
		now:       time.Now,
	}
}

// Create validates in and stores a new promotion with zero usage.
func (s *Service) Create(ctx context.Context, in Input) (*Promotion, error) {
	in.Code = discount.NormalizeCode(in.Code)
	if in.Code == "" {
		in.Code = generateCode()
	}
	in.EligibleCategories = cleanList(in.EligibleCategories)
	in.EligibleItems = cleanList(in.EligibleItems)

	now := s.now()
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Code, discount.CodeRules...),
		validation.Field(&in.DiscountType, discount.TypeRules...),
		validation.Field(&in.DiscountValue, discount.ValueRule(in.DiscountType)),
		validation.Field(&in.ExpirationDate, validation.Required, discount.FutureRule(now)),
		validation.Field(&in.UsageLimit, validation.Required, validation.Min(1)),
		validation.Field(&in.EligibleCategories, eligibilityRule(in.EligibleItems)),
	)
	if err != nil {
		return nil, discount.InputError(err)
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	p := &Promotion{
		ID:                 uuid.NewString(),
		Code:               in.Code,
		DiscountType:       in.DiscountType,
		DiscountValue:      in.DiscountValue,
		ExpirationDate:     in.ExpirationDate,
		UsageLimit:         in.UsageLimit,
		EligibleCategories: in.EligibleCategories,
		EligibleItems:      in.EligibleItems,
		IsActive:           active,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, ErrDuplicateCode
		}
		return nil, errors.Wrap(err, "create promotion")
	}
	return p, nil
}

// Get returns a live promotion by ID.
func (s *Service) Get(ctx context.Context, id string) (*Promotion, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get promotion")
	}
	return p, nil
}

// List returns one page of live promotions.
func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	f.Page, f.Limit = discount.NormalizePage(f.Page, f.Limit)
	f.CodePrefix = discount.NormalizeCode(f.CodePrefix)

	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}
	return &Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Update applies patch to the promotion under optimistic locking.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Promotion, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Version != nil && *patch.Version != p.Version {
		return nil, ErrVersionConflict
	}

	if patch.DiscountType != nil {
		p.DiscountType = *patch.DiscountType
	}
	if patch.DiscountValue != nil {
		p.DiscountValue = *patch.DiscountValue
	}
	now := s.now()
	if discount.Reactivates(!now.Before(p.ExpirationDate), patch.ExpirationDate, patch.IsActive, now) {
		p.IsActive = true
	}
	if patch.ExpirationDate != nil {
		p.ExpirationDate = *patch.ExpirationDate
	}
	if patch.UsageLimit != nil {
		p.UsageLimit = *patch.UsageLimit
	}
	if patch.EligibleCategories != nil {
		p.EligibleCategories = cleanList(patch.EligibleCategories)
	}
	if patch.EligibleItems != nil {
		p.EligibleItems = cleanList(patch.EligibleItems)
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}

	err = validation.ValidateStruct(p,
		validation.Field(&p.DiscountType, discount.TypeRules...),
		validation.Field(&p.DiscountValue, discount.ValueRule(p.DiscountType)),
		validation.Field(&p.ExpirationDate, validation.When(patch.ExpirationDate != nil, discount.FutureRule(now))),
		validation.Field(&p.UsageLimit, validation.Min(1)),
		validation.Field(&p.EligibleCategories, eligibilityRule(p.EligibleItems)),
	)
	if err != nil {
		return nil, discount.InputError(err)
	}

	p.UpdatedAt = now
	if err := s.repo.Update(ctx, p); err != nil {
		switch {
		case errors.Is(err, ErrVersionConflict):
			return nil, ErrVersionConflict
		case errors.Is(err, ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "update promotion")
	}
	return p, nil
}

// Delete soft-deletes an unused promotion.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return ErrNotFound
		case errors.Is(err, ErrInUse):
			return ErrInUse
		}
		return errors.Wrap(err, "delete promotion")
	}
	return nil
}

// Validate checks that code is usable.
func (s *Service) Validate(ctx context.Context, code string) (*Promotion, error) {
	return s.validator.ValidateUsable(ctx, code)
}

// DeactivateExpired switches off promotions whose expiration has passed.
func (s *Service) DeactivateExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeactivateExpired(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "deactivate expired promotions")
	}
	return n, nil
}

// eligibilityRule requires the categories or the given items to be non-empty.
func eligibilityRule(items []string) validation.Rule {
	return validation.By(func(value any) error {
		categories, _ := value.([]string)
		if len(categories) == 0 && len(items) == 0 {
			return errors.New("eligibleCategories or eligibleItems must not be empty")
		}
		return nil
	})
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func generateCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
}
