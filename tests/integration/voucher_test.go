//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoucherAdmin(t *testing.T) {
	admin := adminToken(t)
	expires := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)

	created := decode[voucherResponse](t, do(t, http.MethodPost, "/api/vouchers", admin, map[string]any{
		"code":           "spring25",
		"discountType":   "PERCENTAGE",
		"discountValue":  25,
		"expirationDate": expires,
		"usageLimit":     3,
	}), http.StatusCreated)
	assert.Equal(t, "SPRING25", created.Code)
	assert.True(t, created.IsActive)

	dup := do(t, http.MethodPost, "/api/vouchers", admin, map[string]any{
		"code":           "SPRING25",
		"discountType":   "PERCENTAGE",
		"discountValue":  10,
		"expirationDate": expires,
		"usageLimit":     1,
	})
	expectError(t, dup, http.StatusConflict, "VOUCHER_CODE_EXISTS")

	invalid := do(t, http.MethodPost, "/api/vouchers", admin, map[string]any{
		"discountType":   "PERCENTAGE",
		"discountValue":  150,
		"expirationDate": expires,
		"usageLimit":     1,
	})
	expectError(t, invalid, http.StatusBadRequest, "INVALID_INPUT")

	updated := decode[voucherResponse](t, do(t, http.MethodPatch, "/api/vouchers/"+created.ID, admin, map[string]any{
		"usageLimit": 10,
		"version":    created.Version,
	}), http.StatusOK)
	assert.Equal(t, 10, updated.UsageLimit)
	assert.Greater(t, updated.Version, created.Version)

	stale := do(t, http.MethodPatch, "/api/vouchers/"+created.ID, admin, map[string]any{
		"usageLimit": 11,
		"version":    created.Version,
	})
	expectError(t, stale, http.StatusConflict, "VOUCHER_VERSION_CONFLICT")

	resp := do(t, http.MethodPost, "/api/vouchers/validate", customer(t), map[string]any{
		"code":     "spring25",
		"subtotal": "40.00",
	})
	valid := decode[struct {
		Valid bool `json:"valid"`
	}](t, resp, http.StatusOK)
	assert.True(t, valid.Valid)

	del := do(t, http.MethodDelete, "/api/vouchers/"+created.ID, admin, nil)
	require.Equal(t, http.StatusNoContent, del.StatusCode)
	expectError(t, do(t, http.MethodGet, "/api/vouchers/"+created.ID, admin, nil), http.StatusNotFound, "VOUCHER_NOT_FOUND")
}

func TestVoucherInUseCannotBeDeleted(t *testing.T) {
	admin := adminToken(t)
	bearer := customer(t)

	v := decode[voucherResponse](t, do(t, http.MethodPost, "/api/vouchers", admin, map[string]any{
		"code":           "KEEPME",
		"discountType":   "FIXED",
		"discountValue":  "2.00",
		"expirationDate": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"usageLimit":     5,
	}), http.StatusCreated)

	o := createOrder(t, bearer, lineRequest{ProductID: "6", Quantity: 1})
	decode[applyResponse](t, apply(t, bearer, o.ID, "KEEPME"), http.StatusOK)

	expectError(t, do(t, http.MethodDelete, "/api/vouchers/"+v.ID, admin, nil), http.StatusConflict, "VOUCHER_IN_USE")
}

func TestPromotionValidate(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/promotions/validate", customer(t), map[string]string{"code": "techweek"})
	body := decode[struct {
		Valid     bool `json:"valid"`
		Promotion struct {
			Code               string   `json:"code"`
			EligibleCategories []string `json:"eligibleCategories"`
		} `json:"promotion"`
	}](t, resp, http.StatusOK)
	assert.True(t, body.Valid)
	assert.Equal(t, "TECHWEEK", body.Promotion.Code)
	assert.Equal(t, []string{"Electronics"}, body.Promotion.EligibleCategories)

	expectError(t, do(t, http.MethodPost, "/api/promotions/validate", customer(t), map[string]string{"code": "NOPE"}),
		http.StatusNotFound, "PROMOTION_NOT_FOUND")
}
