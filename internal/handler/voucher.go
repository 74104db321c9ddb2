package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/voucher-engine/internal/domain/voucher"
)

func (h *Handler) createVoucher(w http.ResponseWriter, r *http.Request) error {
	var req voucherRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	v, err := h.vouchers.Create(r.Context(), req.input())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeVoucher(e, v)
	})
	return nil
}

func (h *Handler) getVoucher(w http.ResponseWriter, r *http.Request) error {
	v, err := h.vouchers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeVoucher(e, v)
	})
	return nil
}

func (h *Handler) listVouchers(w http.ResponseWriter, r *http.Request) error {
	f, err := ruleFilter(r)
	if err != nil {
		return err
	}
	res, err := h.vouchers.List(r.Context(), voucher.Filter(f))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePage(e, res.Total, res.Page, res.Limit, func(e *jx.Encoder) {
			for i := range res.Items {
				encodeVoucher(e, &res.Items[i])
			}
		})
	})
	return nil
}

// updateVoucher applies a partial update. A null minOrderValue removes the
// minimum.
func (h *Handler) updateVoucher(w http.ResponseWriter, r *http.Request) error {
	var req voucherRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	v, err := h.vouchers.Update(r.Context(), chi.URLParam(r, "id"), req.patch())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeVoucher(e, v)
	})
	return nil
}

func (h *Handler) deleteVoucher(w http.ResponseWriter, r *http.Request) error {
	if err := h.vouchers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// validateVoucher reports whether a voucher could be applied to an order
// with the given subtotal, without consuming it.
func (h *Handler) validateVoucher(w http.ResponseWriter, r *http.Request) error {
	var req validateVoucherRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	v, err := h.vouchers.Validate(r.Context(), req.Code, req.Subtotal)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("valid")
		e.Bool(true)
		e.FieldStart("voucher")
		encodeVoucher(e, v)
		e.ObjEnd()
	})
	return nil
}

func encodeVoucher(e *jx.Encoder, v *voucher.Voucher) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(v.ID)
	e.FieldStart("code")
	e.Str(v.Code)
	e.FieldStart("discountType")
	e.Str(string(v.DiscountType))
	e.FieldStart("discountValue")
	encodeMoney(e, v.DiscountValue)
	e.FieldStart("expirationDate")
	encodeTime(e, v.ExpirationDate)
	e.FieldStart("usageLimit")
	e.Int(v.UsageLimit)
	e.FieldStart("currentUsage")
	e.Int(v.CurrentUsage)
	e.FieldStart("minOrderValue")
	if v.MinOrderValue != nil {
		encodeMoney(e, *v.MinOrderValue)
	} else {
		e.Null()
	}
	e.FieldStart("isActive")
	e.Bool(v.IsActive)
	e.FieldStart("version")
	e.Int64(v.Version)
	e.FieldStart("createdAt")
	encodeTime(e, v.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, v.UpdatedAt)
	e.ObjEnd()
}

// filter holds the listing query shared by vouchers and promotions.
type filter struct {
	Active     *bool
	CodePrefix string
	Page       int
	Limit      int
}

func ruleFilter(r *http.Request) (filter, error) {
	active, err := queryBool(r, "active")
	if err != nil {
		return filter{}, err
	}
	page, err := queryInt(r, "page")
	if err != nil {
		return filter{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return filter{}, err
	}
	return filter{
		Active:     active,
		CodePrefix: r.URL.Query().Get("code"),
		Page:       page,
		Limit:      limit,
	}, nil
}
