package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/voucher-engine/internal/domain/auth"
	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/fault"
	"github.com/xenking/voucher-engine/internal/domain/product"
	"github.com/xenking/voucher-engine/internal/domain/promotion"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
)

// LineRequest is one requested order line.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// ApplyResult is the outcome of a successful discount application.
type ApplyResult struct {
	Order  *Order
	Source discount.Source
	Code   string
	Amount decimal.Decimal
	// Capped is set when the 50% cap reduced the computed amount.
	Capped bool
}

// Page is one page of an order listing.
type Page struct {
	Items []Order
	Total int
	Page  int
	Limit int
}

// Service applies, removes and releases discounts on orders.
type Service struct {
	products   product.Repository
	orders     Repository
	vouchers   voucher.Repository
	promotions promotion.Repository
	tx         Transactor
	resolver   *Resolver
	now        func() time.Time

	tracer   trace.Tracer
	applied  metric.Int64Counter
	rejected metric.Int64Counter
	released metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	orders Repository,
	vouchers voucher.Repository,
	promotions promotion.Repository,
	tx Transactor,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	meter := mp.Meter("voucher-engine/order")
	applied, err := meter.Int64Counter("discount.applied",
		metric.WithDescription("Discounts applied to orders"))
	if err != nil {
		return nil, errors.Wrap(err, "create applied counter")
	}
	rejected, err := meter.Int64Counter("discount.rejected",
		metric.WithDescription("Discount applications rejected by business rules"))
	if err != nil {
		return nil, errors.Wrap(err, "create rejected counter")
	}
	released, err := meter.Int64Counter("discount.released",
		metric.WithDescription("Rule usages released by removal or cancellation"))
	if err != nil {
		return nil, errors.Wrap(err, "create released counter")
	}

	return &Service{
		products:   products,
		orders:     orders,
		vouchers:   vouchers,
		promotions: promotions,
		tx:         tx,
		resolver:   NewResolver(voucher.NewValidator(vouchers), promotion.NewValidator(promotions)),
		now:        time.Now,
		tracer:     tp.Tracer("voucher-engine/order"),
		applied:    applied,
		rejected:   rejected,
		released:   released,
	}, nil
}

// CreateOrder prices the requested lines from the catalog and stores a new
// pending order owned by the caller.
func (s *Service) CreateOrder(ctx context.Context, caller auth.Caller, lines []LineRequest) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, fault.Detail(ErrInvalidQuantity,
				fmt.Sprintf("quantity must be greater than 0 for product %s", line.ProductID))
		}
		ids[i] = line.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	now := s.now()
	o := &Order{
		ID:            uuid.NewString(),
		CustomerID:    caller.ID,
		Items:         make([]Item, len(lines)),
		TotalDiscount: decimal.Zero,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	subtotal := decimal.Zero
	for i, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, fault.Detail(ErrUnknownProduct, fmt.Sprintf("product %s not found", line.ProductID))
		}
		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		o.Items[i] = Item{
			ProductID:   p.ID,
			ProductName: p.Name,
			Category:    p.Category,
			UnitPrice:   p.Price,
			Quantity:    line.Quantity,
			LineTotal:   discount.Round(lineTotal),
		}
		subtotal = subtotal.Add(lineTotal)
	}
	o.Subtotal = discount.Round(subtotal)
	o.FinalTotal = o.Subtotal

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("subtotal", o.Subtotal.StringFixed(2)),
	)
	return o, nil
}

// GetOrder returns an order visible to the caller. Admins see every order.
func (s *Service) GetOrder(ctx context.Context, caller auth.Caller, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if o.CustomerID != caller.ID && !caller.IsAdmin() {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListOrders returns the caller's orders. Admins may list any customer's
// orders, or all of them with an empty CustomerID.
func (s *Service) ListOrders(ctx context.Context, caller auth.Caller, f Filter) (*Page, error) {
	if !caller.IsAdmin() {
		f.CustomerID = caller.ID
	}
	f.Page, f.Limit = discount.NormalizePage(f.Page, f.Limit)

	items, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// ApplyDiscount resolves code against the caller's pending order, caps the
// amount and commits the discount record, the order totals and the rule
// usage in one transaction. A concurrent change to the rule or the order
// fails the whole operation with a Conflict error.
func (s *Service) ApplyDiscount(ctx context.Context, callerID, orderID, code string) (_ *ApplyResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.ApplyDiscount",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() {
		s.finishSpan(ctx, span, rerr)
		if rerr != nil && fault.KindOf(rerr) != fault.Internal {
			s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", fault.CodeOf(rerr))))
		}
	}()

	code = discount.NormalizeCode(code)
	if code == "" {
		return nil, fault.Invalid("code is required")
	}

	o, err := s.ownedPending(ctx, callerID, orderID)
	if err != nil {
		return nil, err
	}
	if _, ok := o.FindDiscount(code); ok {
		return nil, ErrDuplicateCode
	}

	res, err := s.resolver.Resolve(ctx, o, code)
	if err != nil {
		return nil, err
	}
	amount, err := discount.Cap(o.Subtotal, o.TotalDiscount, res.Amount)
	if err != nil {
		return nil, err
	}
	capped := amount.LessThan(res.Amount)
	amount = discount.Round(amount)
	if !amount.IsPositive() {
		return nil, ErrZeroDiscount
	}
	span.SetAttributes(
		attribute.String("discount.source", string(res.Source)),
		attribute.String("discount.amount", amount.StringFixed(2)),
	)

	record := Discount{
		ID:        uuid.NewString(),
		Source:    res.Source,
		Code:      code,
		Amount:    amount,
		AppliedAt: s.now(),
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.orders.InsertDiscount(ctx, o.ID, record); err != nil {
			return err
		}
		if err := s.orders.AddDiscount(ctx, o.ID, amount); err != nil {
			return err
		}
		return s.incrementUsage(ctx, res)
	})
	if err != nil {
		return nil, s.txError(err, "apply discount")
	}

	updated, err := s.orders.Get(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "reload order")
	}
	s.applied.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(res.Source))))
	zctx.From(ctx).Info("Discount applied",
		zap.String("order_id", o.ID),
		zap.String("code", code),
		zap.String("source", string(res.Source)),
		zap.String("amount", amount.StringFixed(2)),
		zap.Bool("capped", capped),
	)

	return &ApplyResult{
		Order:  updated,
		Source: res.Source,
		Code:   code,
		Amount: amount,
		Capped: capped,
	}, nil
}

// RemoveDiscount deletes an applied discount from the caller's pending
// order, restores its amount to the order totals and releases the rule usage.
func (s *Service) RemoveDiscount(ctx context.Context, callerID, orderID, code string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.RemoveDiscount",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { s.finishSpan(ctx, span, rerr) }()

	code = discount.NormalizeCode(code)
	o, err := s.ownedPending(ctx, callerID, orderID)
	if err != nil {
		return nil, err
	}
	if _, ok := o.FindDiscount(code); !ok {
		return nil, ErrDiscountNotFound
	}

	var (
		removed  Discount
		released bool
	)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if removed, err = s.orders.DeleteDiscount(ctx, o.ID, code); err != nil {
			return err
		}
		if err := s.orders.SubtractDiscount(ctx, o.ID, removed.Amount); err != nil {
			return err
		}
		released, err = s.release(ctx, removed)
		return err
	})
	if err != nil {
		return nil, s.txError(err, "remove discount")
	}
	if released {
		s.released.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(removed.Source))))
	}

	updated, err := s.orders.Get(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "reload order")
	}
	zctx.From(ctx).Info("Discount removed",
		zap.String("order_id", o.ID),
		zap.String("code", code),
	)
	return updated, nil
}

// CancelOrder cancels the caller's pending order and releases the usage of
// every discount on it at the time of cancellation. The discount records and
// totals are kept.
func (s *Service) CancelOrder(ctx context.Context, callerID, orderID string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { s.finishSpan(ctx, span, rerr) }()

	o, err := s.ownedPending(ctx, callerID, orderID)
	if err != nil {
		return nil, err
	}

	var released []Discount
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Transition(ctx, o.ID, StatusPending, StatusCancelled); err != nil {
			return err
		}
		// The transition locks the order, so this read sees every discount
		// change committed since ownedPending.
		current, err := s.orders.Get(ctx, o.ID)
		if err != nil {
			return err
		}
		released = released[:0]
		for _, d := range current.Discounts {
			ok, err := s.release(ctx, d)
			if err != nil {
				return err
			}
			if ok {
				released = append(released, d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.txError(err, "cancel order")
	}
	for _, d := range released {
		s.released.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(d.Source))))
	}

	updated, err := s.orders.Get(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "reload order")
	}
	zctx.From(ctx).Info("Order cancelled",
		zap.String("order_id", o.ID),
		zap.Int("released", len(released)),
	)
	return updated, nil
}

// ownedPending loads an order the caller owns and checks it is pending.
// Orders of other customers are reported as missing.
func (s *Service) ownedPending(ctx context.Context, callerID, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if o.CustomerID != callerID {
		return nil, ErrNotFound
	}
	if o.Status != StatusPending {
		return nil, ErrNotPending
	}
	return o, nil
}

func (s *Service) incrementUsage(ctx context.Context, res *Resolution) error {
	switch res.Source {
	case discount.SourceVoucher:
		_, err := s.vouchers.IncrementUsage(ctx, res.RuleID, res.Version)
		return err
	case discount.SourcePromotion:
		_, err := s.promotions.IncrementUsage(ctx, res.RuleID, res.Version)
		return err
	}
	return errors.Errorf("unknown discount source %q", res.Source)
}

// release gives back one use of the rule that produced d. A rule that no
// longer exists is skipped and reported as not released.
func (s *Service) release(ctx context.Context, d Discount) (bool, error) {
	lg := zctx.From(ctx).With(zap.String("code", d.Code), zap.String("source", string(d.Source)))

	var err error
	switch d.Source {
	case discount.SourceVoucher:
		var v *voucher.Voucher
		if v, err = s.vouchers.FindByCode(ctx, d.Code); err == nil {
			_, err = s.vouchers.DecrementUsage(ctx, v.ID)
		}
		if errors.Is(err, voucher.ErrNotFound) {
			lg.Warn("Voucher gone, usage not released")
			return false, nil
		}
	case discount.SourcePromotion:
		var p *promotion.Promotion
		if p, err = s.promotions.FindByCode(ctx, d.Code); err == nil {
			_, err = s.promotions.DecrementUsage(ctx, p.ID)
		}
		if errors.Is(err, promotion.ErrNotFound) {
			lg.Warn("Promotion gone, usage not released")
			return false, nil
		}
	default:
		return false, errors.Errorf("unknown discount source %q", d.Source)
	}
	if err != nil {
		return false, errors.Wrap(err, "release usage")
	}
	return true, nil
}

// txError keeps classified errors as they are and wraps the rest.
func (s *Service) txError(err error, op string) error {
	if fault.KindOf(err) != fault.Internal {
		return err
	}
	return errors.Wrap(err, op)
}

func (s *Service) finishSpan(ctx context.Context, span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	kind := fault.KindOf(err)
	span.SetAttributes(attribute.String("error.code", fault.CodeOf(err)))
	if kind == fault.Internal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		zctx.From(ctx).Error("Order operation failed", zap.Error(err))
	}
}
