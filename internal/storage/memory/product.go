package memory

import (
	"context"
	"sort"

	"github.com/xenking/voucher-engine/internal/domain/product"
)

type productRepo struct {
	s *Store
}

func (r *productRepo) List(ctx context.Context) ([]product.Product, error) {
	defer r.s.lock(ctx)()

	out := make([]product.Product, 0, len(r.s.st.products))
	for _, p := range r.s.st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *productRepo) GetByID(ctx context.Context, id string) (*product.Product, error) {
	defer r.s.lock(ctx)()

	p, ok := r.s.st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *productRepo) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	defer r.s.lock(ctx)()

	seen := make(map[string]struct{}, len(ids))
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.s.st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
