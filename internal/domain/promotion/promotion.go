package promotion

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/fault"
)

var (
	// ErrNotFound is returned when no live promotion has the code or ID.
	ErrNotFound = fault.New(fault.NotFound, "PROMOTION_NOT_FOUND", "promotion not found")
	// ErrInactive is returned for a promotion switched off by an admin.
	ErrInactive = fault.New(fault.RuleUnusable, "PROMOTION_INACTIVE", "promotion is not active")
	// ErrExpired is returned once the expiration date has passed.
	ErrExpired = fault.New(fault.RuleUnusable, "PROMOTION_EXPIRED", "promotion expired")
	// ErrUsageLimitReached is returned when every allowed use is taken.
	ErrUsageLimitReached = fault.New(fault.RuleUnusable, "PROMOTION_USAGE_LIMIT_REACHED", "promotion usage limit reached")
	// ErrVersionConflict is returned when a guarded update saw a stale version.
	ErrVersionConflict = fault.New(fault.Conflict, "PROMOTION_VERSION_CONFLICT", "promotion was modified concurrently")
	// ErrDuplicateCode is returned when another live promotion owns the code.
	ErrDuplicateCode = fault.New(fault.Conflict, "PROMOTION_CODE_EXISTS", "promotion code already exists")
	// ErrInUse is returned when deleting a promotion that has been used.
	ErrInUse = fault.New(fault.Conflict, "PROMOTION_IN_USE", "promotion has been used and cannot be deleted")
)

// Promotion is a discount rule restricted to eligible order lines.
type Promotion struct {
	ID                 string
	Code               string
	DiscountType       discount.Type
	DiscountValue      decimal.Decimal
	ExpirationDate     time.Time
	UsageLimit         int
	CurrentUsage       int
	EligibleCategories []string
	EligibleItems      []string
	IsActive           bool
	Version            int64
	DeletedAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CheckUsable reports why the promotion cannot be applied at time now.
func (p *Promotion) CheckUsable(now time.Time) error {
	switch {
	case p.DeletedAt != nil:
		return ErrNotFound
	case !p.IsActive:
		return ErrInactive
	case !now.Before(p.ExpirationDate):
		return ErrExpired
	case p.CurrentUsage >= p.UsageLimit:
		return ErrUsageLimitReached
	}
	return nil
}

// Eligible returns the order lines the promotion applies to.
func (p *Promotion) Eligible(items []discount.Item) ([]discount.Item, error) {
	return discount.EligibleItems(p.EligibleCategories, p.EligibleItems, items)
}

// Filter narrows a promotion listing.
type Filter struct {
	Active     *bool
	CodePrefix string
	Page       int
	Limit      int
}

// Page is one page of a promotion listing.
type Page struct {
	Items []Promotion
	Total int
	Page  int
	Limit int
}

// Repository stores promotions with the same contract as voucher.Repository.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Promotion, error)
	FindByID(ctx context.Context, id string) (*Promotion, error)
	List(ctx context.Context, f Filter) ([]Promotion, int, error)
	Create(ctx context.Context, p *Promotion) error
	Update(ctx context.Context, p *Promotion) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	IncrementUsage(ctx context.Context, id string, expectedVersion int64) (*Promotion, error)
	DecrementUsage(ctx context.Context, id string) (*Promotion, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
