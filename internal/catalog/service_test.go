package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	categories map[int64]Category
	products   map[int64]Product
	vendors    []Vendor
	stocked    map[int64]bool
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		categories: make(map[int64]Category),
		products:   make(map[int64]Product),
		stocked:    make(map[int64]bool),
	}
}

func (r *memoryRepo) ListCategories(ctx context.Context) ([]Category, error) {
	result := make([]Category, 0, len(r.categories))
	for _, c := range r.categories {
		result = append(result, c)
	}
	return result, nil
}

func (r *memoryRepo) GetCategory(ctx context.Context, id int64) (Category, error) {
	c, ok := r.categories[id]
	if !ok {
		return Category{}, ErrCategoryNotFound
	}
	return c, nil
}

func (r *memoryRepo) CreateCategory(ctx context.Context, c Category) (Category, error) {
	r.nextID++
	c.ID = r.nextID
	r.categories[c.ID] = c
	return c, nil
}

func (r *memoryRepo) UpdateCategory(ctx context.Context, c Category) error {
	if _, ok := r.categories[c.ID]; !ok {
		return ErrCategoryNotFound
	}
	r.categories[c.ID] = c
	return nil
}

func (r *memoryRepo) DeleteCategory(ctx context.Context, id int64) error {
	if _, ok := r.categories[id]; !ok {
		return ErrCategoryNotFound
	}
	if r.stocked[id] {
		return ErrCategoryInUse
	}
	delete(r.categories, id)
	return nil
}

func (r *memoryRepo) ListProducts(ctx context.Context, categoryID int64) ([]Product, error) {
	result := make([]Product, 0)
	for _, p := range r.products {
		if categoryID == 0 || p.CategoryID == categoryID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) ListVendors(ctx context.Context) ([]Vendor, error) {
	return r.vendors, nil
}

func TestCreateCategoryValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, "  ", "", 10)
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = svc.CreateCategory(ctx, strings.Repeat("x", 121), "", 10)
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = svc.CreateCategory(ctx, "Salmon", "", -1)
	require.ErrorIs(t, err, ErrInvalidThreshold)

	category, err := svc.CreateCategory(ctx, "  Salmon  ", "Fresh", 20)
	require.NoError(t, err)
	require.Equal(t, "Salmon", category.Name)
	require.InDelta(t, 20.0, category.ReorderThresholdKg, 1e-9)
}

func TestUpdateCategory(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, "Salmon", "", 20)
	require.NoError(t, err)

	updated, err := svc.UpdateCategory(ctx, category.ID, "Atlantic Salmon", "Fresh", 25)
	require.NoError(t, err)
	require.Equal(t, "Atlantic Salmon", updated.Name)
	require.InDelta(t, 25.0, updated.ReorderThresholdKg, 1e-9)

	_, err = svc.UpdateCategory(ctx, 999, "Nope", "", 0)
	require.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestDeleteCategoryWithStockRefused(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, "Salmon", "", 20)
	require.NoError(t, err)
	repo.stocked[category.ID] = true

	require.ErrorIs(t, svc.DeleteCategory(ctx, category.ID), ErrCategoryInUse)

	repo.stocked[category.ID] = false
	require.NoError(t, svc.DeleteCategory(ctx, category.ID))
}

func TestCreateProductSaleUnits(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, "Salmon", "", 20)
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, Product{CategoryID: category.ID, Name: "Fillet", SaleUnit: "BUCKET"})
	require.ErrorIs(t, err, ErrInvalidSaleUnit)

	// Package products need a positive package weight.
	_, err = svc.CreateProduct(ctx, Product{CategoryID: category.ID, Name: "Pack", SaleUnit: SaleUnitPackage})
	require.ErrorIs(t, err, ErrInvalidSaleUnit)

	_, err = svc.CreateProduct(ctx, Product{CategoryID: 999, Name: "Fillet", SaleUnit: SaleUnitWeight})
	require.ErrorIs(t, err, ErrCategoryNotFound)

	product, err := svc.CreateProduct(ctx, Product{CategoryID: category.ID, Name: "Pack", SaleUnit: SaleUnitPackage, PackageWeightKg: 0.5, Price: 16})
	require.NoError(t, err)
	require.True(t, product.IsActive)
}
