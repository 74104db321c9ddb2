package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/order"
)

type orderRepo struct {
	s *Store
}

func (r *orderRepo) Create(ctx context.Context, o *order.Order) error {
	defer r.s.lock(ctx)()

	r.s.st.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	defer r.s.lock(ctx)()

	o, ok := r.s.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r *orderRepo) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	defer r.s.lock(ctx)()

	var out []order.Order
	for _, o := range r.s.st.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, f.Page, f.Limit), len(out), nil
}

func (r *orderRepo) InsertDiscount(ctx context.Context, orderID string, d order.Discount) error {
	defer r.s.lock(ctx)()

	o, ok := r.s.st.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if _, dup := o.FindDiscount(d.Code); dup {
		return order.ErrDuplicateCode
	}
	o = cloneOrder(o)
	o.Discounts = append(o.Discounts, d)
	r.s.st.orders[orderID] = o
	return nil
}

func (r *orderRepo) DeleteDiscount(ctx context.Context, orderID, code string) (order.Discount, error) {
	defer r.s.lock(ctx)()

	o, ok := r.s.st.orders[orderID]
	if !ok {
		return order.Discount{}, order.ErrNotFound
	}
	for i, d := range o.Discounts {
		if d.Code == code {
			o = cloneOrder(o)
			o.Discounts = append(o.Discounts[:i], o.Discounts[i+1:]...)
			r.s.st.orders[orderID] = o
			return d, nil
		}
	}
	return order.Discount{}, order.ErrDiscountNotFound
}

func (r *orderRepo) AddDiscount(ctx context.Context, orderID string, amount decimal.Decimal) error {
	defer r.s.lock(ctx)()

	o, ok := r.s.st.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	total := o.TotalDiscount.Add(amount)
	if o.Status != order.StatusPending || total.GreaterThan(discount.Ceiling(o.Subtotal)) {
		return order.ErrConflict
	}
	o.TotalDiscount = total
	o.FinalTotal = o.Subtotal.Sub(total)
	r.s.st.orders[orderID] = o
	return nil
}

func (r *orderRepo) SubtractDiscount(ctx context.Context, orderID string, amount decimal.Decimal) error {
	defer r.s.lock(ctx)()

	o, ok := r.s.st.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != order.StatusPending {
		return order.ErrConflict
	}
	total := o.TotalDiscount.Sub(amount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	o.TotalDiscount = total
	o.FinalTotal = o.Subtotal.Sub(total)
	r.s.st.orders[orderID] = o
	return nil
}

func (r *orderRepo) Transition(ctx context.Context, orderID string, from, to order.Status) error {
	defer r.s.lock(ctx)()

	o, ok := r.s.st.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrNotPending
	}
	o.Status = to
	r.s.st.orders[orderID] = o
	return nil
}
