package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/xenking/voucher-engine/internal/domain/voucher"
)

type voucherRepo struct {
	s *Store
}

func (r *voucherRepo) FindByCode(ctx context.Context, code string) (*voucher.Voucher, error) {
	defer r.s.lock(ctx)()

	code = strings.ToUpper(code)
	for _, v := range r.s.st.vouchers {
		if v.Code == code && v.DeletedAt == nil {
			return &v, nil
		}
	}
	return nil, voucher.ErrNotFound
}

func (r *voucherRepo) FindByID(ctx context.Context, id string) (*voucher.Voucher, error) {
	defer r.s.lock(ctx)()

	v, ok := r.s.st.vouchers[id]
	if !ok || v.DeletedAt != nil {
		return nil, voucher.ErrNotFound
	}
	return &v, nil
}

func (r *voucherRepo) List(ctx context.Context, f voucher.Filter) ([]voucher.Voucher, int, error) {
	defer r.s.lock(ctx)()

	var out []voucher.Voucher
	for _, v := range r.s.st.vouchers {
		if v.DeletedAt != nil {
			continue
		}
		if f.Active != nil && v.IsActive != *f.Active {
			continue
		}
		if f.CodePrefix != "" && !strings.HasPrefix(v.Code, f.CodePrefix) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return paginate(out, f.Page, f.Limit), len(out), nil
}

func (r *voucherRepo) Create(ctx context.Context, v *voucher.Voucher) error {
	defer r.s.lock(ctx)()

	for _, existing := range r.s.st.vouchers {
		if existing.Code == v.Code && existing.DeletedAt == nil {
			return voucher.ErrDuplicateCode
		}
	}
	r.s.st.vouchers[v.ID] = *v
	return nil
}

func (r *voucherRepo) Update(ctx context.Context, v *voucher.Voucher) error {
	defer r.s.lock(ctx)()

	stored, ok := r.s.st.vouchers[v.ID]
	if !ok || stored.DeletedAt != nil {
		return voucher.ErrNotFound
	}
	if stored.Version != v.Version {
		return voucher.ErrVersionConflict
	}
	// Usage is owned by order operations.
	v.CurrentUsage = stored.CurrentUsage
	v.Version++
	r.s.st.vouchers[v.ID] = *v
	return nil
}

func (r *voucherRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	defer r.s.lock(ctx)()

	v, ok := r.s.st.vouchers[id]
	if !ok || v.DeletedAt != nil {
		return voucher.ErrNotFound
	}
	if v.CurrentUsage > 0 {
		return voucher.ErrInUse
	}
	v.DeletedAt = &at
	v.Version++
	r.s.st.vouchers[id] = v
	return nil
}

func (r *voucherRepo) IncrementUsage(ctx context.Context, id string, expectedVersion int64) (*voucher.Voucher, error) {
	defer r.s.lock(ctx)()

	v, ok := r.s.st.vouchers[id]
	if !ok || v.DeletedAt != nil {
		return nil, voucher.ErrNotFound
	}
	if v.Version != expectedVersion {
		return nil, voucher.ErrVersionConflict
	}
	v.CurrentUsage++
	v.Version++
	r.s.st.vouchers[id] = v
	return &v, nil
}

func (r *voucherRepo) DecrementUsage(ctx context.Context, id string) (*voucher.Voucher, error) {
	defer r.s.lock(ctx)()

	v, ok := r.s.st.vouchers[id]
	if !ok || v.DeletedAt != nil {
		return nil, voucher.ErrNotFound
	}
	if v.CurrentUsage > 0 {
		v.CurrentUsage--
		v.Version++
		r.s.st.vouchers[id] = v
	}
	return &v, nil
}

func (r *voucherRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for id, v := range r.s.st.vouchers {
		if v.DeletedAt == nil && v.IsActive && !now.Before(v.ExpirationDate) {
			v.IsActive = false
			v.Version++
			r.s.st.vouchers[id] = v
			n++
		}
	}
	return n, nil
}
