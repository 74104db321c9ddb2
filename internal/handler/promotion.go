package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/voucher-engine/internal/domain/promotion"
)

func (h *Handler) createPromotion(w http.ResponseWriter, r *http.Request) error {
	var req promotionRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	p, err := h.promotions.Create(r.Context(), req.input())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodePromotion(e, p)
	})
	return nil
}

func (h *Handler) getPromotion(w http.ResponseWriter, r *http.Request) error {
	p, err := h.promotions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePromotion(e, p)
	})
	return nil
}

func (h *Handler) listPromotions(w http.ResponseWriter, r *http.Request) error {
	f, err := ruleFilter(r)
	if err != nil {
		return err
	}
	res, err := h.promotions.List(r.Context(), promotion.Filter(f))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePage(e, res.Total, res.Page, res.Limit, func(e *jx.Encoder) {
			for i := range res.Items {
				encodePromotion(e, &res.Items[i])
			}
		})
	})
	return nil
}

// updatePromotion applies a partial update. A present eligibility list
// replaces the stored one.
func (h *Handler) updatePromotion(w http.ResponseWriter, r *http.Request) error {
	var req promotionRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	updated, err := h.promotions.Update(r.Context(), chi.URLParam(r, "id"), req.patch())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePromotion(e, updated)
	})
	return nil
}

func (h *Handler) deletePromotion(w http.ResponseWriter, r *http.Request) error {
	if err := h.promotions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) validatePromotion(w http.ResponseWriter, r *http.Request) error {
	var req codeRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	p, err := h.promotions.Validate(r.Context(), req.Code)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("valid")
		e.Bool(true)
		e.FieldStart("promotion")
		encodePromotion(e, p)
		e.ObjEnd()
	})
	return nil
}

func encodePromotion(e *jx.Encoder, p *promotion.Promotion) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("code")
	e.Str(p.Code)
	e.FieldStart("discountType")
	e.Str(string(p.DiscountType))
	e.FieldStart("discountValue")
	encodeMoney(e, p.DiscountValue)
	e.FieldStart("expirationDate")
	encodeTime(e, p.ExpirationDate)
	e.FieldStart("usageLimit")
	e.Int(p.UsageLimit)
	e.FieldStart("currentUsage")
	e.Int(p.CurrentUsage)
	e.FieldStart("eligibleCategories")
	encodeStrings(e, p.EligibleCategories)
	e.FieldStart("eligibleItems")
	encodeStrings(e, p.EligibleItems)
	e.FieldStart("isActive")
	e.Bool(p.IsActive)
	e.FieldStart("version")
	e.Int64(p.Version)
	e.FieldStart("createdAt")
	encodeTime(e, p.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}
