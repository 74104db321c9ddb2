package voucher

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/fault"
)

func TestValidator_ValidateUsable(t *testing.T) {
	minOrder := decimal.RequireFromString("50.00")
	deletedAt := testNow.Add(-time.Hour)

	base := func() *Voucher {
		return &Voucher{
			ID:             "v1",
			Code:           "SAVE10",
			DiscountType:   discount.Percentage,
			DiscountValue:  decimal.NewFromInt(10),
			ExpirationDate: testNow.Add(time.Hour),
			UsageLimit:     3,
			IsActive:       true,
			Version:        4,
		}
	}

	tests := []struct {
		name     string
		mutate   func(v *Voucher)
		code     string
		subtotal string
		wantErr  error
		wantKind fault.Kind
	}{
		{
			name:     "usable",
			code:     "SAVE10",
			subtotal: "100.00",
		},
		{
			name:     "code is normalized",
			code:     "  save10 ",
			subtotal: "100.00",
		},
		{
			name:     "unknown code",
			code:     "NOPE",
			subtotal: "100.00",
			wantErr:  ErrNotFound,
			wantKind: fault.NotFound,
		},
		{
			name:     "inactive",
			mutate:   func(v *Voucher) { v.IsActive = false },
			code:     "SAVE10",
			subtotal: "100.00",
			wantErr:  ErrInactive,
			wantKind: fault.RuleUnusable,
		},
		{
			name:     "expires exactly now",
			mutate:   func(v *Voucher) { v.ExpirationDate = testNow },
			code:     "SAVE10",
			subtotal: "100.00",
			wantErr:  ErrExpired,
			wantKind: fault.RuleUnusable,
		},
		{
			name:     "usage limit reached",
			mutate:   func(v *Voucher) { v.CurrentUsage = 3 },
			code:     "SAVE10",
			subtotal: "100.00",
			wantErr:  ErrUsageLimitReached,
			wantKind: fault.RuleUnusable,
		},
		{
			name:     "below minimum order",
			mutate:   func(v *Voucher) { v.MinOrderValue = &minOrder },
			code:     "SAVE10",
			subtotal: "49.99",
			wantErr:  ErrBelowMinOrder,
			wantKind: fault.RuleUnusable,
		},
		{
			name:     "exactly the minimum order",
			mutate:   func(v *Voucher) { v.MinOrderValue = &minOrder },
			code:     "SAVE10",
			subtotal: "50.00",
		},
		{
			name:     "soft deleted is not found",
			mutate:   func(v *Voucher) { v.DeletedAt = &deletedAt },
			code:     "SAVE10",
			subtotal: "100.00",
			wantErr:  ErrNotFound,
			wantKind: fault.NotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := base()
			if tt.mutate != nil {
				tt.mutate(v)
			}
			val := NewValidator(newMockRepo(v))
			val.now = func() time.Time { return testNow }

			got, err := val.ValidateUsable(context.Background(), tt.code, decimal.RequireFromString(tt.subtotal))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.wantKind, fault.KindOf(err))
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "v1", got.ID)
			assert.Equal(t, int64(4), got.Version)
		})
	}
}
