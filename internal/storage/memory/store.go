// Package memory implements the domain repositories on in-process maps.
//
// Transactions are serialized: InTx holds a store-wide lock for the whole
// callback, snapshots the state on entry and restores it when the callback
// fails. Repository calls made outside a transaction wait for running
// transactions to finish.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/voucher-engine/internal/domain/order"
	"github.com/xenking/voucher-engine/internal/domain/product"
	"github.com/xenking/voucher-engine/internal/domain/promotion"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
)

type state struct {
	products   map[string]product.Product
	vouchers   map[string]voucher.Voucher
	promotions map[string]promotion.Promotion
	orders     map[string]order.Order
}

func newState() *state {
	return &state{
		products:   make(map[string]product.Product),
		vouchers:   make(map[string]voucher.Voucher),
		promotions: make(map[string]promotion.Promotion),
		orders:     make(map[string]order.Order),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.vouchers {
		c.vouchers[k] = v
	}
	for k, p := range s.promotions {
		c.promotions[k] = clonePromotion(p)
	}
	for k, o := range s.orders {
		c.orders[k] = cloneOrder(o)
	}
	return c
}

// Store holds every repository's data.
type Store struct {
	mu sync.Mutex
	st *state
}

// New creates an empty Store.
func New() *Store {
	return &Store{st: newState()}
}

type txKey struct{}

// InTx runs fn with the store locked. State changed by fn is rolled back
// when fn returns an error.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// lock acquires the store unless ctx belongs to a running transaction,
// which already holds it.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Products returns the product catalog repository.
func (s *Store) Products() product.Repository { return &productRepo{s: s} }

// Vouchers returns the voucher repository.
func (s *Store) Vouchers() voucher.Repository { return &voucherRepo{s: s} }

// Promotions returns the promotion repository.
func (s *Store) Promotions() promotion.Repository { return &promotionRepo{s: s} }

// Orders returns the order repository.
func (s *Store) Orders() order.Repository { return &orderRepo{s: s} }

// AddProducts loads catalog entries, replacing any with the same ID.
func (s *Store) AddProducts(products ...product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.st.products[p.ID] = p
	}
}

func clonePromotion(p promotion.Promotion) promotion.Promotion {
	p.EligibleCategories = slices.Clone(p.EligibleCategories)
	p.EligibleItems = slices.Clone(p.EligibleItems)
	return p
}

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	o.Discounts = slices.Clone(o.Discounts)
	return o
}

func paginate[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return items
	}
	start := (page - 1) * limit
	if start < 0 {
		start = 0
	}
	if start >= len(items) {
		return nil
	}
	end := min(start+limit, len(items))
	return items[start:end]
}
