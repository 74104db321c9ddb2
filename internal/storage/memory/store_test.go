package memory

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/order"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
)

func newVoucher(id, code string) *voucher.Voucher {
	return &voucher.Voucher{
		ID:             id,
		Code:           code,
		DiscountType:   discount.Fixed,
		DiscountValue:  decimal.NewFromInt(5),
		ExpirationDate: time.Now().Add(time.Hour),
		UsageLimit:     2,
		IsActive:       true,
	}
}

func TestStore_InTxRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Vouchers().Create(ctx, newVoucher("v1", "SAVE5")))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context) error {
		_, err := s.Vouchers().IncrementUsage(ctx, "v1", 0)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	v, err := s.Vouchers().FindByID(ctx, "v1")
	require.NoError(t, err)
	assert.Zero(t, v.CurrentUsage)
	assert.Zero(t, v.Version)
}

func TestVoucherRepo_UsageCounters(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Vouchers()
	require.NoError(t, repo.Create(ctx, newVoucher("v1", "SAVE5")))

	v, err := repo.IncrementUsage(ctx, "v1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, v.CurrentUsage)
	assert.Equal(t, int64(1), v.Version)

	_, err = repo.IncrementUsage(ctx, "v1", 0)
	require.ErrorIs(t, err, voucher.ErrVersionConflict)

	v, err = repo.DecrementUsage(ctx, "v1")
	require.NoError(t, err)
	assert.Zero(t, v.CurrentUsage)
	assert.Equal(t, int64(2), v.Version)

	// Floor at zero leaves the version alone.
	v, err = repo.DecrementUsage(ctx, "v1")
	require.NoError(t, err)
	assert.Zero(t, v.CurrentUsage)
	assert.Equal(t, int64(2), v.Version)
}

func TestVoucherRepo_SoftDeleteFreesCode(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Vouchers()
	require.NoError(t, repo.Create(ctx, newVoucher("v1", "SAVE5")))

	err := repo.Create(ctx, newVoucher("v2", "SAVE5"))
	require.ErrorIs(t, err, voucher.ErrDuplicateCode)

	require.NoError(t, repo.SoftDelete(ctx, "v1", time.Now()))
	_, err = repo.FindByCode(ctx, "save5")
	require.ErrorIs(t, err, voucher.ErrNotFound)

	require.NoError(t, repo.Create(ctx, newVoucher("v2", "SAVE5")))
	got, err := repo.FindByCode(ctx, "SAVE5")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.ID)
}

func TestVoucherRepo_ListPaging(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Vouchers()
	base := time.Now()
	for i, code := range []string{"AAA1", "AAA2", "BBB1"} {
		v := newVoucher(code, code)
		v.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, v))
	}

	items, total, err := repo.List(ctx, voucher.Filter{CodePrefix: "AAA", Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 1)
	assert.Equal(t, "AAA2", items[0].Code)

	items, _, err = repo.List(ctx, voucher.Filter{CodePrefix: "AAA", Page: 3, Limit: 1})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestOrderRepo_DiscountTotalsGuard(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Orders()
	require.NoError(t, repo.Create(ctx, &order.Order{
		ID:         "o1",
		Subtotal:   decimal.RequireFromString("100.00"),
		FinalTotal: decimal.RequireFromString("100.00"),
		Status:     order.StatusPending,
	}))

	require.NoError(t, repo.AddDiscount(ctx, "o1", decimal.RequireFromString("40.00")))
	err := repo.AddDiscount(ctx, "o1", decimal.RequireFromString("10.01"))
	require.ErrorIs(t, err, order.ErrConflict)

	require.NoError(t, repo.SubtractDiscount(ctx, "o1", decimal.RequireFromString("60.00")))
	o, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, o.TotalDiscount.IsZero())
	assert.Equal(t, "100.00", o.FinalTotal.StringFixed(2))

	require.NoError(t, repo.Transition(ctx, "o1", order.StatusPending, order.StatusCancelled))
	err = repo.Transition(ctx, "o1", order.StatusPending, order.StatusCancelled)
	require.ErrorIs(t, err, order.ErrNotPending)
	err = repo.AddDiscount(ctx, "o1", decimal.RequireFromString("1.00"))
	require.ErrorIs(t, err, order.ErrConflict)
}

func TestOrderRepo_DiscountRecords(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Orders()
	require.NoError(t, repo.Create(ctx, &order.Order{ID: "o1", Status: order.StatusPending}))

	d := order.Discount{ID: "d1", Source: discount.SourceVoucher, Code: "SAVE5", Amount: decimal.NewFromInt(5)}
	require.NoError(t, repo.InsertDiscount(ctx, "o1", d))
	require.ErrorIs(t, repo.InsertDiscount(ctx, "o1", d), order.ErrDuplicateCode)

	removed, err := repo.DeleteDiscount(ctx, "o1", "SAVE5")
	require.NoError(t, err)
	assert.Equal(t, "d1", removed.ID)

	_, err = repo.DeleteDiscount(ctx, "o1", "SAVE5")
	require.ErrorIs(t, err, order.ErrDiscountNotFound)
}
