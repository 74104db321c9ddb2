package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/fault"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

var (
	ErrNotFound         = fault.New(fault.NotFound, "ORDER_NOT_FOUND", "order not found")
	ErrNotPending       = fault.New(fault.InvalidState, "ORDER_NOT_PENDING", "order is not pending")
	ErrDuplicateCode    = fault.New(fault.Conflict, "DISCOUNT_ALREADY_APPLIED", "discount code already applied to this order")
	ErrDiscountNotFound = fault.New(fault.NotFound, "DISCOUNT_NOT_FOUND", "discount code is not applied to this order")
	ErrConflict         = fault.New(fault.Conflict, "ORDER_CONFLICT", "order was modified concurrently")
	ErrZeroDiscount     = fault.New(fault.RuleUnusable, "DISCOUNT_ZERO", "discount amount rounds to zero")
	ErrCodeNotFound     = fault.New(fault.NotFound, "CODE_NOT_FOUND", "no voucher or promotion with this code")
	ErrEmptyItems       = fault.New(fault.InvalidInput, "EMPTY_ITEMS", "items required")
	ErrInvalidQuantity  = fault.New(fault.InvalidInput, "INVALID_QUANTITY", "quantity must be greater than 0")
	ErrUnknownProduct   = fault.New(fault.InvalidInput, "UNKNOWN_PRODUCT", "product does not exist")
)

// Order is a customer order. Items and Subtotal are fixed at creation.
type Order struct {
	ID            string
	CustomerID    string
	Items         []Item
	Discounts     []Discount
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	FinalTotal    decimal.Decimal
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Item is an order line priced from the catalog at creation.
type Item struct {
	ProductID   string
	ProductName string
	Category    string
	UnitPrice   decimal.Decimal
	Quantity    int
	LineTotal   decimal.Decimal
}

// Discount records a voucher or promotion applied to an order.
type Discount struct {
	ID        string
	Source    discount.Source
	Code      string
	Amount    decimal.Decimal
	AppliedAt time.Time
}

// DiscountItems converts the order lines for eligibility matching.
func (o *Order) DiscountItems() []discount.Item {
	items := make([]discount.Item, len(o.Items))
	for i, it := range o.Items {
		items[i] = discount.Item{
			ProductID: it.ProductID,
			Category:  it.Category,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}
	return items
}

// FindDiscount returns the applied discount with the normalized code.
func (o *Order) FindDiscount(code string) (Discount, bool) {
	for _, d := range o.Discounts {
		if d.Code == code {
			return d, true
		}
	}
	return Discount{}, false
}

// Filter narrows an order listing. An empty CustomerID lists every order.
type Filter struct {
	CustomerID string
	Status     Status
	Page       int
	Limit      int
}

// Repository stores orders. Methods called with a context produced by a
// Transactor take part in that transaction.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// Get returns the order with its items and discounts.
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, int, error)
	// InsertDiscount records d on the order. It returns ErrDuplicateCode
	// when the code is already recorded.
	InsertDiscount(ctx context.Context, orderID string, d Discount) error
	// DeleteDiscount removes the record for code and returns it, or
	// ErrDiscountNotFound.
	DeleteDiscount(ctx context.Context, orderID, code string) (Discount, error)
	// AddDiscount raises the order totals by amount while the order is
	// pending and the total stays within the cap ceiling. It returns
	// ErrConflict otherwise.
	AddDiscount(ctx context.Context, orderID string, amount decimal.Decimal) error
	// SubtractDiscount lowers the order totals by amount, floored at zero,
	// while the order is pending. It returns ErrConflict otherwise.
	SubtractDiscount(ctx context.Context, orderID string, amount decimal.Decimal) error
	// Transition moves the order from one status to another. It returns
	// ErrNotPending when the stored status is not from.
	Transition(ctx context.Context, orderID string, from, to Status) error
}

// Transactor runs fn atomically. Repository calls made with the context
// passed to fn join the transaction; fn's error rolls it back and is
// returned unchanged.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
