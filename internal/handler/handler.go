// Package handler exposes the order, voucher and promotion services over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/voucher-engine/internal/domain/auth"
	"github.com/xenking/voucher-engine/internal/domain/fault"
	"github.com/xenking/voucher-engine/internal/domain/order"
	"github.com/xenking/voucher-engine/internal/domain/product"
	"github.com/xenking/voucher-engine/internal/domain/promotion"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler translates HTTP requests into domain service calls.
type Handler struct {
	products     product.Repository
	orders       *order.Service
	vouchers     *voucher.Service
	promotions   *promotion.Service
	tokens       *auth.Tokens
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	products product.Repository,
	orders *order.Service,
	vouchers *voucher.Service,
	promotions *promotion.Service,
	tokens *auth.Tokens,
) *Handler {
	return &Handler{
		products:     products,
		orders:       orders,
		vouchers:     vouchers,
		promotions:   promotions,
		tokens:       tokens,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes mounts every API route on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/product", h.handle(h.listProducts))
	r.Get("/api/product/{productId}", h.handle(h.getProduct))

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/api/orders", h.handle(h.createOrder))
		r.Get("/api/orders", h.handle(h.listOrders))
		r.Get("/api/orders/{orderId}", h.handle(h.getOrder))
		r.Post("/api/orders/{orderId}/discounts", h.handle(h.applyDiscount))
		r.Delete("/api/orders/{orderId}/discounts/{code}", h.handle(h.removeDiscount))
		r.Post("/api/orders/{orderId}/cancel", h.handle(h.cancelOrder))

		r.Post("/api/vouchers/validate", h.handle(h.validateVoucher))
		r.Post("/api/promotions/validate", h.handle(h.validatePromotion))

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)

			r.Get("/api/vouchers", h.handle(h.listVouchers))
			r.Post("/api/vouchers", h.handle(h.createVoucher))
			r.Get("/api/vouchers/{id}", h.handle(h.getVoucher))
			r.Patch("/api/vouchers/{id}", h.handle(h.updateVoucher))
			r.Delete("/api/vouchers/{id}", h.handle(h.deleteVoucher))

			r.Get("/api/promotions", h.handle(h.listPromotions))
			r.Post("/api/promotions", h.handle(h.createPromotion))
			r.Get("/api/promotions/{id}", h.handle(h.getPromotion))
			r.Patch("/api/promotions/{id}", h.handle(h.updatePromotion))
			r.Delete("/api/promotions/{id}", h.handle(h.deletePromotion))
		})
	})
}

func (h *Handler) handle(fn func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeError(w, r, err)
		}
	}
}

// authenticate requires a valid bearer token and stores the caller in the
// request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := h.tokens.ParseRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := auth.WithCaller(r.Context(), caller)
		ctx = zctx.With(ctx, zap.String("caller_id", caller.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := auth.CallerFrom(r.Context()); !ok || !c.IsAdmin() {
			writeError(w, r, auth.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerOf returns the caller set by authenticate.
func callerOf(r *http.Request) auth.Caller {
	c, _ := auth.CallerFrom(r.Context())
	return c
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind fault.Kind) int {
	switch kind {
	case fault.NotFound:
		return http.StatusNotFound
	case fault.InvalidInput:
		return http.StatusBadRequest
	case fault.Conflict, fault.InvalidState:
		return http.StatusConflict
	case fault.RuleUnusable, fault.CapExhausted:
		return http.StatusUnprocessableEntity
	case fault.Unauthorized:
		return http.StatusUnauthorized
	case fault.Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"code": <status>, "error": <CODE>, "message": ...}.
// Unclassified errors are logged and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := fault.KindOf(err)
	if kind == fault.Internal {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	if kind == fault.Unauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}

	status := statusOf(kind)
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("error")
		e.Str(fault.CodeOf(err))
		e.FieldStart("message")
		e.Str(fault.MessageOf(err))
		e.ObjEnd()
	})
}
