package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/voucher-engine/internal/domain/fault"
	"github.com/xenking/voucher-engine/internal/domain/order"
)

// createOrder prices the requested lines and stores a pending order.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) error {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	o, err := h.orders.CreateOrder(r.Context(), callerOf(r), req.Items)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
	return nil
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) error {
	o, err := h.orders.GetOrder(r.Context(), callerOf(r), chi.URLParam(r, "orderId"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
	return nil
}

// listOrders lists the caller's orders. Admins may filter by customerId or
// see every order.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) error {
	page, err := queryInt(r, "page")
	if err != nil {
		return err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return err
	}
	status := order.Status(r.URL.Query().Get("status"))
	switch status {
	case "", order.StatusPending, order.StatusConfirmed, order.StatusCancelled:
	default:
		return fault.Invalid("status must be one of PENDING, CONFIRMED, CANCELLED")
	}

	res, err := h.orders.ListOrders(r.Context(), callerOf(r), order.Filter{
		CustomerID: r.URL.Query().Get("customerId"),
		Status:     status,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePage(e, res.Total, res.Page, res.Limit, func(e *jx.Encoder) {
			for i := range res.Items {
				encodeOrder(e, &res.Items[i])
			}
		})
	})
	return nil
}

// applyDiscount applies a voucher or promotion code to a pending order.
func (h *Handler) applyDiscount(w http.ResponseWriter, r *http.Request) error {
	var req codeRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	res, err := h.orders.ApplyDiscount(r.Context(), callerOf(r).ID, chi.URLParam(r, "orderId"), req.Code)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, res.Order)
		e.FieldStart("appliedDiscount")
		e.ObjStart()
		e.FieldStart("type")
		e.Str(string(res.Source))
		e.FieldStart("code")
		e.Str(res.Code)
		e.FieldStart("amount")
		encodeMoney(e, res.Amount)
		e.FieldStart("capped")
		e.Bool(res.Capped)
		e.ObjEnd()
		e.FieldStart("newTotal")
		encodeMoney(e, res.Order.FinalTotal)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) removeDiscount(w http.ResponseWriter, r *http.Request) error {
	o, err := h.orders.RemoveDiscount(r.Context(), callerOf(r).ID, chi.URLParam(r, "orderId"), chi.URLParam(r, "code"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
	return nil
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) error {
	o, err := h.orders.CancelOrder(r.Context(), callerOf(r).ID, chi.URLParam(r, "orderId"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
	return nil
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("customerId")
	e.Str(o.CustomerID)
	e.FieldStart("status")
	e.Str(string(o.Status))

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("productName")
		e.Str(it.ProductName)
		e.FieldStart("category")
		e.Str(it.Category)
		e.FieldStart("unitPrice")
		encodeMoney(e, it.UnitPrice)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("lineTotal")
		encodeMoney(e, it.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("discounts")
	e.ArrStart()
	for _, d := range o.Discounts {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(d.ID)
		e.FieldStart("type")
		e.Str(string(d.Source))
		e.FieldStart("code")
		e.Str(d.Code)
		e.FieldStart("amount")
		encodeMoney(e, d.Amount)
		e.FieldStart("appliedAt")
		encodeTime(e, d.AppliedAt)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("subtotal")
	encodeMoney(e, o.Subtotal)
	e.FieldStart("totalDiscount")
	encodeMoney(e, o.TotalDiscount)
	e.FieldStart("finalTotal")
	encodeMoney(e, o.FinalTotal)
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

// encodePage writes {"items": [...], "total", "page", "limit"}.
func encodePage(e *jx.Encoder, total, page, limit int, items func(e *jx.Encoder)) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	items(e)
	e.ArrEnd()
	e.FieldStart("total")
	e.Int(total)
	e.FieldStart("page")
	e.Int(page)
	e.FieldStart("limit")
	e.Int(limit)
	e.ObjEnd()
}
