//go:build integration

package integration

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createOrder(t *testing.T, bearer string, lines ...lineRequest) orderResponse {
	t.Helper()
	return decode[orderResponse](t, do(t, http.MethodPost, "/api/orders", bearer, orderRequest{Items: lines}), http.StatusCreated)
}

func apply(t *testing.T, bearer, orderID, code string) *http.Response {
	t.Helper()
	return do(t, http.MethodPost, "/api/orders/"+orderID+"/discounts", bearer, map[string]string{"code": code})
}

// postStatus is safe to call off the test goroutine.
func postStatus(bearer, path, body string) (int, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, baseURL+path, strings.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func TestCreateOrder_Validation(t *testing.T) {
	bearer := customer(t)
	tests := []struct {
		name     string
		lines    []lineRequest
		wantCode string
	}{
		{"empty", []lineRequest{}, "EMPTY_ITEMS"},
		{"unknown product", []lineRequest{{ProductID: "999", Quantity: 1}}, "UNKNOWN_PRODUCT"},
		{"zero quantity", []lineRequest{{ProductID: "1", Quantity: 0}}, "INVALID_QUANTITY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, "/api/orders", bearer, orderRequest{Items: tt.lines})
			expectError(t, resp, http.StatusBadRequest, tt.wantCode)
		})
	}
}

func TestDiscountLifecycle(t *testing.T) {
	bearer := customer(t)

	// Keyboard 89.00 + 2 x novel 12.50.
	o := createOrder(t, bearer,
		lineRequest{ProductID: "3", Quantity: 1},
		lineRequest{ProductID: "5", Quantity: 2},
	)
	assert.Equal(t, "PENDING", o.Status)
	assert.Equal(t, "114.00", o.Subtotal)
	assert.Equal(t, "114.00", o.FinalTotal)

	res := decode[applyResponse](t, apply(t, bearer, o.ID, "welcome10"), http.StatusOK)
	assert.Equal(t, "VOUCHER", res.AppliedDiscount.Type)
	assert.Equal(t, "WELCOME10", res.AppliedDiscount.Code)
	assert.Equal(t, "11.40", res.AppliedDiscount.Amount)
	assert.Equal(t, "102.60", res.NewTotal)

	// 20% of the Electronics line only.
	res = decode[applyResponse](t, apply(t, bearer, o.ID, "TECHWEEK"), http.StatusOK)
	assert.Equal(t, "PROMOTION", res.AppliedDiscount.Type)
	assert.Equal(t, "17.80", res.AppliedDiscount.Amount)
	assert.Equal(t, "29.20", res.Order.TotalDiscount)

	// 57.00 requested, 27.80 left under the half-subtotal ceiling.
	res = decode[applyResponse](t, apply(t, bearer, o.ID, "HALFOFF"), http.StatusOK)
	assert.True(t, res.AppliedDiscount.Capped)
	assert.Equal(t, "27.80", res.AppliedDiscount.Amount)
	assert.Equal(t, "57.00", res.NewTotal)

	expectError(t, apply(t, bearer, o.ID, "WELCOME10"), http.StatusConflict, "DISCOUNT_ALREADY_APPLIED")
	expectError(t, apply(t, bearer, o.ID, "BOOKWORM"), http.StatusUnprocessableEntity, "DISCOUNT_CAP_REACHED")
	expectError(t, apply(t, bearer, o.ID, "NOSUCHCODE"), http.StatusNotFound, "CODE_NOT_FOUND")
	expectError(t, apply(t, customer(t)+"x", o.ID, "BOOKWORM"), http.StatusUnauthorized, "UNAUTHORIZED")
	expectError(t, apply(t, token(t, "someone-else", "CUSTOMER"), o.ID, "BOOKWORM"), http.StatusNotFound, "ORDER_NOT_FOUND")

	removed := decode[orderResponse](t, do(t, http.MethodDelete, "/api/orders/"+o.ID+"/discounts/HALFOFF", bearer, nil), http.StatusOK)
	assert.Equal(t, "29.20", removed.TotalDiscount)
	assert.Equal(t, "84.80", removed.FinalTotal)
	assert.Len(t, removed.Discounts, 2)

	got := decode[orderResponse](t, do(t, http.MethodGet, "/api/orders/"+o.ID, bearer, nil), http.StatusOK)
	assert.Equal(t, removed, got)

	cancelled := decode[orderResponse](t, do(t, http.MethodPost, "/api/orders/"+o.ID+"/cancel", bearer, nil), http.StatusOK)
	assert.Equal(t, "CANCELLED", cancelled.Status)
	expectError(t, apply(t, bearer, o.ID, "HALFOFF"), http.StatusConflict, "ORDER_NOT_PENDING")
}

func TestApplyDiscount_LastUseRace(t *testing.T) {
	admin := adminToken(t)
	v := decode[voucherResponse](t, do(t, http.MethodPost, "/api/vouchers", admin, map[string]any{
		"code":           "LASTONE",
		"discountType":   "FIXED",
		"discountValue":  "5.00",
		"expirationDate": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"usageLimit":     1,
	}), http.StatusCreated)

	const buyers = 8
	type attempt struct {
		bearer  string
		orderID string
	}
	attempts := make([]attempt, buyers)
	for i := range attempts {
		bearer := token(t, "racer-"+string(rune('a'+i)), "CUSTOMER")
		attempts[i] = attempt{bearer: bearer, orderID: createOrder(t, bearer, lineRequest{ProductID: "6", Quantity: 1}).ID}
	}

	statuses := make([]int, buyers)
	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i, a := range attempts {
		wg.Go(func() {
			statuses[i], errs[i] = postStatus(a.bearer, "/api/orders/"+a.orderID+"/discounts", `{"code":"LASTONE"}`)
		})
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	won := 0
	for _, status := range statuses {
		switch status {
		case http.StatusOK:
			won++
		case http.StatusConflict, http.StatusUnprocessableEntity:
		default:
			t.Errorf("unexpected status %d", status)
		}
	}
	assert.Equal(t, 1, won)

	after := decode[voucherResponse](t, do(t, http.MethodGet, "/api/vouchers/"+v.ID, admin, nil), http.StatusOK)
	require.Equal(t, 1, after.CurrentUsage)
}

func TestListOrders_Scoped(t *testing.T) {
	alice := token(t, "list-alice", "CUSTOMER")
	bob := token(t, "list-bob", "CUSTOMER")
	createOrder(t, alice, lineRequest{ProductID: "1", Quantity: 1})
	createOrder(t, alice, lineRequest{ProductID: "2", Quantity: 3})
	createOrder(t, bob, lineRequest{ProductID: "4", Quantity: 1})

	type page struct {
		Items []orderResponse `json:"items"`
		Total int             `json:"total"`
	}
	own := decode[page](t, do(t, http.MethodGet, "/api/orders", alice, nil), http.StatusOK)
	assert.Equal(t, 2, own.Total)
	for _, o := range own.Items {
		assert.Equal(t, "list-alice", o.CustomerID)
	}

	filtered := decode[page](t, do(t, http.MethodGet, "/api/orders?customerId=list-bob", adminToken(t), nil), http.StatusOK)
	require.Equal(t, 1, filtered.Total)
	assert.Equal(t, "list-bob", filtered.Items[0].CustomerID)
}
