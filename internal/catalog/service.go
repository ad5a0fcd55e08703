package catalog

import (
	"context"
	"strings"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	CreateCategory(ctx context.Context, c Category) (Category, error)
	UpdateCategory(ctx context.Context, c Category) error
	DeleteCategory(ctx context.Context, id int64) error
	ListProducts(ctx context.Context, categoryID int64) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	ListVendors(ctx context.Context) ([]Vendor, error)
}

// Service coordinates catalog reads and the small write surface the
// back office needs.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func validName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && len(name) <= 120
}

// ListCategories lists all categories by name.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// GetCategory returns one category.
func (s *Service) GetCategory(ctx context.Context, id int64) (Category, error) {
	return s.repo.GetCategory(ctx, id)
}

// CreateCategory registers a new category.
func (s *Service) CreateCategory(ctx context.Context, name, description string, thresholdKg float64) (Category, error) {
	if !validName(name) {
		return Category{}, ErrInvalidName
	}
	if thresholdKg < 0 {
		return Category{}, ErrInvalidThreshold
	}
	return s.repo.CreateCategory(ctx, Category{
		Name:               strings.TrimSpace(name),
		Description:        strings.TrimSpace(description),
		ReorderThresholdKg: thresholdKg,
	})
}

// UpdateCategory renames a category or adjusts its reorder threshold.
func (s *Service) UpdateCategory(ctx context.Context, id int64, name, description string, thresholdKg float64) (Category, error) {
	if !validName(name) {
		return Category{}, ErrInvalidName
	}
	if thresholdKg < 0 {
		return Category{}, ErrInvalidThreshold
	}
	current, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	current.Name = strings.TrimSpace(name)
	current.Description = strings.TrimSpace(description)
	current.ReorderThresholdKg = thresholdKg
	if err := s.repo.UpdateCategory(ctx, current); err != nil {
		return Category{}, err
	}
	return current, nil
}

// DeleteCategory removes a category with no remaining stock.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.repo.DeleteCategory(ctx, id)
}

// ListProducts lists products, optionally filtered by category.
func (s *Service) ListProducts(ctx context.Context, categoryID int64) ([]Product, error) {
	return s.repo.ListProducts(ctx, categoryID)
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// CreateProduct registers a sellable product under a category.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if !validName(p.Name) {
		return Product{}, ErrInvalidName
	}
	switch p.SaleUnit {
	case SaleUnitWeight, SaleUnitPiece:
	case SaleUnitPackage:
		if p.PackageWeightKg <= 0 {
			return Product{}, ErrInvalidSaleUnit
		}
	default:
		return Product{}, ErrInvalidSaleUnit
	}
	if _, err := s.repo.GetCategory(ctx, p.CategoryID); err != nil {
		return Product{}, err
	}
	p.Name = strings.TrimSpace(p.Name)
	p.IsActive = true
	return s.repo.CreateProduct(ctx, p)
}

// ListVendors lists suppliers.
func (s *Service) ListVendors(ctx context.Context) ([]Vendor, error) {
	return s.repo.ListVendors(ctx)
}
