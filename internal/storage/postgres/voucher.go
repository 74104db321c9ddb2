package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/discount"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
)

const (
	voucherColumns = `id, code, discount_type, discount_value, expiration_date, usage_limit,
		current_usage, min_order_value, is_active, version, deleted_at, created_at, updated_at`

	findVoucherByCodeSQL = `SELECT ` + voucherColumns + ` FROM vouchers
		WHERE code = UPPER($1) AND deleted_at IS NULL`

	findVoucherByIDSQL = `SELECT ` + voucherColumns + ` FROM vouchers
		WHERE id = $1 AND deleted_at IS NULL`

	listVouchersSQL = `SELECT ` + voucherColumns + ` FROM vouchers
		WHERE deleted_at IS NULL
			AND ($1::boolean IS NULL OR is_active = $1)
			AND code LIKE $2 || '%'
		ORDER BY created_at DESC, code
		LIMIT $3 OFFSET $4`

	countVouchersSQL = `SELECT COUNT(*) FROM vouchers
		WHERE deleted_at IS NULL
			AND ($1::boolean IS NULL OR is_active = $1)
			AND code LIKE $2 || '%'`

	createVoucherSQL = `INSERT INTO vouchers (id, code, discount_type, discount_value, expiration_date,
		usage_limit, current_usage, min_order_value, is_active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, 0, $9, $9)`

	updateVoucherSQL = `UPDATE vouchers SET
			discount_type = $3, discount_value = $4, expiration_date = $5, usage_limit = $6,
			min_order_value = $7, is_active = $8, updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING version`

	softDeleteVoucherSQL = `UPDATE vouchers SET deleted_at = $2, updated_at = $2, version = version + 1
		WHERE id = $1 AND deleted_at IS NULL AND current_usage = 0`

	incrementVoucherUsageSQL = `UPDATE vouchers SET
			current_usage = current_usage + 1, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING ` + voucherColumns

	decrementVoucherUsageSQL = `UPDATE vouchers SET
			current_usage = current_usage - 1, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND current_usage > 0 AND deleted_at IS NULL
		RETURNING ` + voucherColumns

	deactivateExpiredVouchersSQL = `UPDATE vouchers SET is_active = FALSE, version = version + 1, updated_at = $1
		WHERE is_active AND deleted_at IS NULL AND expiration_date <= $1`
)

var _ voucher.Repository = (*VoucherRepository)(nil)

// VoucherRepository implements voucher.Repository backed by PostgreSQL.
type VoucherRepository struct {
	pool *pgxpool.Pool
}

// NewVoucherRepository returns a VoucherRepository that uses the given pool.
func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{pool: pool}
}

// FindByCode looks up a live voucher by its code (case-insensitive).
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*voucher.Voucher, error) {
	return r.one(ctx, findVoucherByCodeSQL, code)
}

// FindByID looks up a live voucher by its identifier.
func (r *VoucherRepository) FindByID(ctx context.Context, id string) (*voucher.Voucher, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, voucher.ErrNotFound
	}
	return r.one(ctx, findVoucherByIDSQL, id)
}

// List returns one page of live vouchers, newest first, and the total count.
func (r *VoucherRepository) List(ctx context.Context, f voucher.Filter) ([]voucher.Voucher, int, error) {
	q := conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, countVouchersSQL, f.Active, f.CodePrefix).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting vouchers: %w", err)
	}

	rows, err := q.Query(ctx, listVouchersSQL, f.Active, f.CodePrefix, f.Limit, (f.Page-1)*f.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("listing vouchers: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanVoucher)
	if err != nil {
		return nil, 0, fmt.Errorf("listing vouchers: %w", err)
	}
	return items, total, nil
}

// Create inserts a new voucher. A live voucher with the same code yields
// voucher.ErrDuplicateCode.
func (r *VoucherRepository) Create(ctx context.Context, v *voucher.Voucher) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createVoucherSQL,
		v.ID, v.Code, string(v.DiscountType), v.DiscountValue, v.ExpirationDate,
		v.UsageLimit, nullDecimal(v.MinOrderValue), v.IsActive, v.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return voucher.ErrDuplicateCode
		}
		return fmt.Errorf("creating voucher %q: %w", v.Code, err)
	}
	return nil
}

// Update writes the admin-editable fields when the stored version matches
// v.Version, and advances v.Version.
func (r *VoucherRepository) Update(ctx context.Context, v *voucher.Voucher) error {
	var version int64
	err := conn(ctx, r.pool).QueryRow(ctx, updateVoucherSQL,
		v.ID, v.Version, string(v.DiscountType), v.DiscountValue, v.ExpirationDate,
		v.UsageLimit, nullDecimal(v.MinOrderValue), v.IsActive, v.UpdatedAt,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missingOr(ctx, v.ID, voucher.ErrVersionConflict)
		}
		return fmt.Errorf("updating voucher %q: %w", v.ID, err)
	}
	v.Version = version
	return nil
}

// SoftDelete marks an unused voucher deleted.
func (r *VoucherRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return voucher.ErrNotFound
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, softDeleteVoucherSQL, id, at)
	if err != nil {
		return fmt.Errorf("deleting voucher %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOr(ctx, id, voucher.ErrInUse)
	}
	return nil
}

// IncrementUsage adds one use when the stored version equals expectedVersion.
func (r *VoucherRepository) IncrementUsage(ctx context.Context, id string, expectedVersion int64) (*voucher.Voucher, error) {
	v, err := r.one(ctx, incrementVoucherUsageSQL, id, expectedVersion)
	if errors.Is(err, voucher.ErrNotFound) {
		return nil, voucher.ErrVersionConflict
	}
	return v, err
}

// DecrementUsage releases one use. The voucher is returned unchanged when
// its usage is already zero.
func (r *VoucherRepository) DecrementUsage(ctx context.Context, id string) (*voucher.Voucher, error) {
	v, err := r.one(ctx, decrementVoucherUsageSQL, id)
	if errors.Is(err, voucher.ErrNotFound) {
		return r.FindByID(ctx, id)
	}
	return v, err
}

// DeactivateExpired switches off active vouchers whose expiration passed.
func (r *VoucherRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, deactivateExpiredVouchersSQL, now)
	if err != nil {
		return 0, fmt.Errorf("deactivating expired vouchers: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *VoucherRepository) one(ctx context.Context, sql string, args ...any) (*voucher.Voucher, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying voucher: %w", err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVoucher)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, voucher.ErrNotFound
		}
		return nil, fmt.Errorf("querying voucher: %w", err)
	}
	return &v, nil
}

// missingOr reports voucher.ErrNotFound when id no longer names a live
// voucher, and otherwise returns cause.
func (r *VoucherRepository) missingOr(ctx context.Context, id string, cause error) error {
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return cause
}

func scanVoucher(row pgx.CollectableRow) (voucher.Voucher, error) {
	var (
		v            voucher.Voucher
		discountType string
		minOrder     decimal.NullDecimal
	)
	err := row.Scan(
		&v.ID, &v.Code, &discountType, &v.DiscountValue, &v.ExpirationDate, &v.UsageLimit,
		&v.CurrentUsage, &minOrder, &v.IsActive, &v.Version, &v.DeletedAt, &v.CreatedAt, &v.UpdatedAt,
	)
	v.DiscountType = discount.Type(discountType)
	if minOrder.Valid {
		v.MinOrderValue = &minOrder.Decimal
	}
	return v, err
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
