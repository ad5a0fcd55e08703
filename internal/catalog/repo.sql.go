package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, reorder_threshold_kg, created_at, updated_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.ReorderThresholdKg, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *Repository) GetCategory(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `SELECT id, name, description, reorder_threshold_kg, created_at, updated_at FROM categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.ReorderThresholdKg, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, ErrCategoryNotFound
	}
	return c, err
}

func (r *Repository) CreateCategory(ctx context.Context, c Category) (Category, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, description, reorder_threshold_kg, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4) RETURNING id`, c.Name, c.Description, c.ReorderThresholdKg, now).Scan(&c.ID)
	if err != nil {
		return Category{}, err
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return c, nil
}

func (r *Repository) UpdateCategory(ctx context.Context, c Category) error {
	tag, err := r.pool.Exec(ctx, `UPDATE categories SET name=$2, description=$3, reorder_threshold_kg=$4, updated_at=NOW() WHERE id=$1`,
		c.ID, c.Name, c.Description, c.ReorderThresholdKg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// DeleteCategory removes a category unless any of its lots still holds
// remaining weight or pieces.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var inUse bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM lots WHERE category_id=$1 AND (remaining_weight_kg > 0 OR COALESCE(remaining_pieces, 0) > 0))`, id).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return ErrCategoryInUse
	}
	tag, err := tx.Exec(ctx, `DELETE FROM categories WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return tx.Commit(ctx)
}

func (r *Repository) ListProducts(ctx context.Context, categoryID int64) ([]Product, error) {
	query := `SELECT id, category_id, name, sale_unit, package_weight_kg, price, is_active FROM products`
	args := []any{}
	if categoryID != 0 {
		query += ` WHERE category_id=$1`
		args = append(args, categoryID)
	}
	query += ` ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.SaleUnit, &p.PackageWeightKg, &p.Price, &p.IsActive); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, category_id, name, sale_unit, package_weight_kg, price, is_active FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.CategoryID, &p.Name, &p.SaleUnit, &p.PackageWeightKg, &p.Price, &p.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (r *Repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO products (category_id, name, sale_unit, package_weight_kg, price, is_active)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, p.CategoryID, p.Name, string(p.SaleUnit), p.PackageWeightKg, p.Price, p.IsActive).Scan(&p.ID)
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (r *Repository) ListVendors(ctx context.Context) ([]Vendor, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, phone FROM vendors ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	vendors := []Vendor{}
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Phone); err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}
