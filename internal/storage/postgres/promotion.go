package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/promotion"
)

const (
	promotionColumns = `id, code, discount_type, discount_value, expiration_date, usage_limit,
		current_usage, eligible_categories, eligible_items, is_active, version, deleted_at, created_at, updated_at`

	findPromotionByCodeSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE code = UPPER($1) AND deleted_at IS NULL`

	findPromotionByIDSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE id = $1 AND deleted_at IS NULL`

	listPromotionsSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE deleted_at IS NULL
			AND ($1::boolean IS NULL OR is_active = $1)
			AND code LIKE $2 || '%'
		ORDER BY created_at DESC, code
		LIMIT $3 OFFSET $4`

	countPromotionsSQL = `SELECT COUNT(*) FROM promotions
		WHERE deleted_at IS NULL
			AND ($1::boolean IS NULL OR is_active = $1)
			AND code LIKE $2 || '%'`

	createPromotionSQL = `INSERT INTO promotions (id, code, discount_type, discount_value, expiration_date,
		usage_limit, current_usage, eligible_categories, eligible_items, is_active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, 0, $10, $10)`

	updatePromotionSQL = `UPDATE promotions SET
			discount_type = $3, discount_value = $4, expiration_date = $5, usage_limit = $6,
			eligible_categories = $7, eligible_items = $8, is_active = $9, updated_at = $10,
			version = version + 1
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING version`

	softDeletePromotionSQL = `UPDATE promotions SET deleted_at = $2, updated_at = $2, version = version + 1
		WHERE id = $1 AND deleted_at IS NULL AND current_usage = 0`

	incrementPromotionUsageSQL = `UPDATE promotions SET
			current_usage = current_usage + 1, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING ` + promotionColumns

	decrementPromotionUsageSQL = `UPDATE promotions SET
			current_usage = current_usage - 1, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND current_usage > 0 AND deleted_at IS NULL
		RETURNING ` + promotionColumns

	deactivateExpiredPromotionsSQL = `UPDATE promotions SET is_active = FALSE, version = version + 1, updated_at = $1
		WHERE is_active AND deleted_at IS NULL AND expiration_date <= $1`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	return r.one(ctx, findPromotionByCodeSQL, code)
}

func (r *PromotionRepository) FindByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, promotion.ErrNotFound
	}
	return r.one(ctx, findPromotionByIDSQL, id)
}

func (r *PromotionRepository) List(ctx context.Context, f promotion.Filter) ([]promotion.Promotion, int, error) {
	q := conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, countPromotionsSQL, f.Active, f.CodePrefix).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting promotions: %w", err)
	}

	rows, err := q.Query(ctx, listPromotionsSQL, f.Active, f.CodePrefix, f.Limit, (f.Page-1)*f.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("listing promotions: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, 0, fmt.Errorf("listing promotions: %w", err)
	}
	return items, total, nil
}

func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createPromotionSQL,
		p.ID, p.Code, string(p.DiscountType), p.DiscountValue, p.ExpirationDate, p.UsageLimit,
		textArray(p.EligibleCategories), textArray(p.EligibleItems), p.IsActive, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return promotion.ErrDuplicateCode
		}
		return fmt.Errorf("creating promotion %q: %w", p.Code, err)
	}
	return nil
}

func (r *PromotionRepository) Update(ctx context.Context, p *promotion.Promotion) error {
	var version int64
	err := conn(ctx, r.pool).QueryRow(ctx, updatePromotionSQL,
		p.ID, p.Version, string(p.DiscountType), p.DiscountValue, p.ExpirationDate, p.UsageLimit,
		textArray(p.EligibleCategories), textArray(p.EligibleItems), p.IsActive, p.UpdatedAt,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missingOr(ctx, p.ID, promotion.ErrVersionConflict)
		}
		return fmt.Errorf("updating promotion %q: %w", p.ID, err)
	}
	p.Version = version
	return nil
}

func (r *PromotionRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return promotion.ErrNotFound
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, softDeletePromotionSQL, id, at)
	if err != nil {
		return fmt.Errorf("deleting promotion %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOr(ctx, id, promotion.ErrInUse)
	}
	return nil
}

func (r *PromotionRepository) IncrementUsage(ctx context.Context, id string, expectedVersion int64) (*promotion.Promotion, error) {
	p, err := r.one(ctx, incrementPromotionUsageSQL, id, expectedVersion)
	if errors.Is(err, promotion.ErrNotFound) {
		return nil, promotion.ErrVersionConflict
	}
	return p, err
}

func (r *PromotionRepository) DecrementUsage(ctx context.Context, id string) (*promotion.Promotion, error) {
	p, err := r.one(ctx, decrementPromotionUsageSQL, id)
	if errors.Is(err, promotion.ErrNotFound) {
		return r.FindByID(ctx, id)
	}
	return p, err
}

func (r *PromotionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, deactivateExpiredPromotionsSQL, now)
	if err != nil {
		return 0, fmt.Errorf("deactivating expired promotions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PromotionRepository) one(ctx context.Context, sql string, args ...any) (*promotion.Promotion, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying promotion: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("querying promotion: %w", err)
	}
	return &p, nil
}

func (r *PromotionRepository) missingOr(ctx context.Context, id string, cause error) error {
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return cause
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p            promotion.Promotion
		discountType string
	)
	err := row.Scan(
		&p.ID, &p.Code, &discountType, &p.DiscountValue, &p.ExpirationDate, &p.UsageLimit,
		&p.CurrentUsage, &p.EligibleCategories, &p.EligibleItems, &p.IsActive, &p.Version,
		&p.DeletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	p.DiscountType = discount.Type(discountType)
	return p, err
}

// textArray keeps NOT NULL array columns from receiving a nil slice.
func textArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
