package voucher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/fault"
)

var (
	// ErrNotFound is returned when no live voucher has the code or ID.
	ErrNotFound = fault.New(fault.NotFound, "VOUCHER_NOT_FOUND", "voucher not found")
	// ErrInactive is returned for a voucher switched off by an admin.
	ErrInactive = fault.New(fault.RuleUnusable, "VOUCHER_INACTIVE", "voucher is not active")
	// ErrExpired is returned once the expiration date has passed.
	ErrExpired = fault.New(fault.RuleUnusable, "VOUCHER_EXPIRED", "voucher expired")
	// ErrUsageLimitReached is returned when every allowed use is taken.
	ErrUsageLimitReached = fault.New(fault.RuleUnusable, "VOUCHER_USAGE_LIMIT_REACHED", "voucher usage limit reached")
	// ErrBelowMinOrder is returned when the order subtotal is under the voucher minimum.
	ErrBelowMinOrder = fault.New(fault.RuleUnusable, "VOUCHER_BELOW_MIN_ORDER", "order subtotal is below the voucher minimum")
	// ErrVersionConflict is returned when a guarded update saw a stale version.
	ErrVersionConflict = fault.New(fault.Conflict, "VOUCHER_VERSION_CONFLICT", "voucher was modified concurrently")
	// ErrDuplicateCode is returned when another live voucher owns the code.
	ErrDuplicateCode = fault.New(fault.Conflict, "VOUCHER_CODE_EXISTS", "voucher code already exists")
	// ErrInUse is returned when deleting a voucher that has been used.
	ErrInUse = fault.New(fault.Conflict, "VOUCHER_IN_USE", "voucher has been used and cannot be deleted")
)

// Voucher is an order-wide discount rule.
type Voucher struct {
	ID             string
	Code           string
	DiscountType   discount.Type
	DiscountValue  decimal.Decimal
	ExpirationDate time.Time
	UsageLimit     int
	CurrentUsage   int
	MinOrderValue  *decimal.Decimal
	IsActive       bool
	Version        int64
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CheckUsable reports why the voucher cannot be applied to an order with
// the given subtotal at time now, or nil when it can.
func (v *Voucher) CheckUsable(now time.Time, subtotal decimal.Decimal) error {
	switch {
	case v.DeletedAt != nil:
		return ErrNotFound
	case !v.IsActive:
		return ErrInactive
	case !now.Before(v.ExpirationDate):
		return ErrExpired
	case v.CurrentUsage >= v.UsageLimit:
		return ErrUsageLimitReached
	case v.MinOrderValue != nil && subtotal.LessThan(*v.MinOrderValue):
		return ErrBelowMinOrder
	}
	return nil
}

// Filter narrows a voucher listing.
type Filter struct {
	Active     *bool
	CodePrefix string
	Page       int
	Limit      int
}

// Page is one page of a voucher listing.
type Page struct {
	Items []Voucher
	Total int
	Page  int
	Limit int
}

// Repository stores vouchers. Soft-deleted vouchers are invisible to every
// method. Methods called with a context produced by a transaction runner
// take part in that transaction.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Voucher, error)
	FindByID(ctx context.Context, id string) (*Voucher, error)
	List(ctx context.Context, f Filter) ([]Voucher, int, error)
	Create(ctx context.Context, v *Voucher) error
	// Update writes v when the stored version equals v.Version and bumps
	// the version. It returns ErrVersionConflict otherwise.
	Update(ctx context.Context, v *Voucher) error
	// SoftDelete marks the voucher deleted. It returns ErrInUse when the
	// voucher has been used.
	SoftDelete(ctx context.Context, id string, at time.Time) error
	// IncrementUsage adds one use when the stored version equals
	// expectedVersion, and returns ErrVersionConflict otherwise.
	IncrementUsage(ctx context.Context, id string, expectedVersion int64) (*Voucher, error)
	// DecrementUsage releases one use regardless of version. It is a no-op
	// when the usage is already zero.
	DecrementUsage(ctx context.Context, id string) (*Voucher, error)
	// DeactivateExpired switches off active vouchers expired at now.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
