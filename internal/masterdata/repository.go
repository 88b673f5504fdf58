package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence for master records.
type Repository interface {
	GetSKU(ctx context.Context, id int64) (SKU, error)
	ListSKUs(ctx context.Context, search string, limit, offset int) ([]SKU, int, error)
	CreateSKU(ctx context.Context, sku SKU) (SKU, error)
	SKUExists(ctx context.Context, id int64) (bool, error)

	GetLocation(ctx context.Context, id int64) (Location, error)
	ListLocations(ctx context.Context, limit, offset int) ([]Location, int, error)
	CreateLocation(ctx context.Context, loc Location) (Location, error)
	LocationExists(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetSKU(ctx context.Context, id int64) (SKU, error) {
	const query = `
		SELECT id, code, name, uom, active, created_at, updated_at
		FROM skus WHERE id = $1`
	var s SKU
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Code, &s.Name, &s.UOM, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SKU{}, ErrSKUNotFound
		}
		return SKU{}, err
	}
	return s, nil
}

func (r *repository) ListSKUs(ctx context.Context, search string, limit, offset int) ([]SKU, int, error) {
	if limit <= 0 {
		limit = 20
	}
	args := []any{}
	query := `SELECT id, code, name, uom, active, created_at, updated_at FROM skus WHERE active`
	countQuery := `SELECT COUNT(*) FROM skus WHERE active`
	if search != "" {
		query += ` AND (code ILIKE $1 OR name ILIKE $1)`
		countQuery += ` AND (code ILIKE $1 OR name ILIKE $1)`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY code`
	args = append(args, limit, offset)
	if search != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var skus []SKU
	for rows.Next() {
		var s SKU
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.UOM, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		skus = append(skus, s)
	}
	return skus, total, rows.Err()
}

func (r *repository) CreateSKU(ctx context.Context, sku SKU) (SKU, error) {
	const query = `
		INSERT INTO skus (code, name, uom, active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, sku.Code, sku.Name, sku.UOM).Scan(&sku.ID, &sku.CreatedAt, &sku.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return SKU{}, ErrDuplicateCode
		}
		return SKU{}, err
	}
	sku.Active = true
	return sku, nil
}

func (r *repository) SKUExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM skus WHERE id = $1 AND active)`, id).Scan(&exists)
	return exists, err
}

func (r *repository) GetLocation(ctx context.Context, id int64) (Location, error) {
	const query = `
		SELECT id, code, name, active, created_at, updated_at
		FROM locations WHERE id = $1`
	var l Location
	err := r.pool.QueryRow(ctx, query, id).Scan(&l.ID, &l.Code, &l.Name, &l.Active, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, ErrLocationNotFound
		}
		return Location{}, err
	}
	return l, nil
}

func (r *repository) ListLocations(ctx context.Context, limit, offset int) ([]Location, int, error) {
	if limit <= 0 {
		limit = 20
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM locations WHERE active`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, active, created_at, updated_at
		FROM locations WHERE active ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &l.Active, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, 0, err
		}
		locations = append(locations, l)
	}
	return locations, total, rows.Err()
}

func (r *repository) CreateLocation(ctx context.Context, loc Location) (Location, error) {
	const query = `
		INSERT INTO locations (code, name, active)
		VALUES ($1, $2, TRUE)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, loc.Code, loc.Name).Scan(&loc.ID, &loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Location{}, ErrDuplicateCode
		}
		return Location{}, err
	}
	loc.Active = true
	return loc, nil
}

func (r *repository) LocationExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1 AND active)`, id).Scan(&exists)
	return exists, err
}
