package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/xenking/voucher-engine/internal/domain/promotion"
)

type promotionRepo struct {
	s *Store
}

func (r *promotionRepo) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	defer r.s.lock(ctx)()

	code = strings.ToUpper(code)
	for _, p := range r.s.st.promotions {
		if p.Code == code && p.DeletedAt == nil {
			p = clonePromotion(p)
			return &p, nil
		}
	}
	return nil, promotion.ErrNotFound
}

func (r *promotionRepo) FindByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	defer r.s.lock(ctx)()

	v, ok := r.s.st.promotions[id]
	if !ok || v.DeletedAt != nil {
		return nil, promotion.ErrNotFound
	}
	v = clonePromotion(v)
	return &v, nil
}

func (r *promotionRepo) List(ctx context.Context, f promotion.Filter) ([]promotion.Promotion, int, error) {
	defer r.s.lock(ctx)()

	var out []promotion.Promotion
	for _, v := range r.s.st.promotions {
		if v.DeletedAt != nil {
			continue
		}
		if f.Active != nil && v.IsActive != *f.Active {
			continue
		}
		if f.CodePrefix != "" && !strings.HasPrefix(v.Code, f.CodePrefix) {
			continue
		}
		out = append(out, clonePromotion(v))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return paginate(out, f.Page, f.Limit), len(out), nil
}

func (r *promotionRepo) Create(ctx context.Context, v *promotion.Promotion) error {
	defer r.s.lock(ctx)()

	for _, existing := range r.s.st.promotions {
		if existing.Code == v.Code && existing.DeletedAt == nil {
			return promotion.ErrDuplicateCode
		}
	}
	r.s.st.promotions[v.ID] = clonePromotion(*v)
	return nil
}

func (r *promotionRepo) Update(ctx context.Context, v *promotion.Promotion) error {
	defer r.s.lock(ctx)()

	stored, ok := r.s.st.promotions[v.ID]
	if !ok || stored.DeletedAt != nil {
		return promotion.ErrNotFound
	}
	if stored.Version != v.Version {
		return promotion.ErrVersionConflict
	}
	// Usage is owned by order operations.
	v.CurrentUsage = stored.CurrentUsage
	v.Version++
	r.s.st.promotions[v.ID] = clonePromotion(*v)
	return nil
}

func (r *promotionRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	defer r.s.lock(ctx)()

	v, ok := r.s.st.promotions[id]
	if !ok || v.DeletedAt != nil {
		return promotion.ErrNotFound
	}
	if v.CurrentUsage > 0 {
		return promotion.ErrInUse
	}
	v.DeletedAt = &at
	v.Version++
	r.s.st.promotions[id] = v
	return nil
}

func (r *promotionRepo) IncrementUsage(ctx context.Context, id string, expectedVersion int64) (*promotion.Promotion, error) {
	defer r.s.lock(ctx)()

	v, ok := r.s.st.promotions[id]
	if !ok || v.DeletedAt != nil {
		return nil, promotion.ErrNotFound
	}
	if v.Version != expectedVersion {
		return nil, promotion.ErrVersionConflict
	}
	v.CurrentUsage++
	v.Version++
	r.s.st.promotions[id] = v
	return &v, nil
}

func (r *promotionRepo) DecrementUsage(ctx context.Context, id string) (*promotion.Promotion, error) {
	defer r.s.lock(ctx)()

	v, ok := r.s.st.promotions[id]
	if !ok || v.DeletedAt != nil {
		return nil, promotion.ErrNotFound
	}
	if v.CurrentUsage > 0 {
		v.CurrentUsage--
		v.Version++
		r.s.st.promotions[id] = v
	}
	return &v, nil
}

func (r *promotionRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for id, v := range r.s.st.promotions {
		if v.DeletedAt == nil && v.IsActive && !now.Before(v.ExpirationDate) {
			v.IsActive = false
			v.Version++
			r.s.st.promotions[id] = v
			n++
		}
	}
	return n, nil
}
