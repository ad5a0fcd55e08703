package catalog

import (
	"errors"
	"time"
)

// SaleUnit enumerates how a derived product is sold at the POS.
type SaleUnit string

const (
	// SaleUnitWeight sells by the kilogram.
	SaleUnitWeight SaleUnit = "WEIGHT"
	// SaleUnitPackage sells fixed-weight packages.
	SaleUnitPackage SaleUnit = "PACKAGE"
	// SaleUnitPiece sells by piece count.
	SaleUnitPiece SaleUnit = "PIECE"
)

// Category groups lots and derived products. ReorderThresholdKg drives
// the low-stock flag on the inventory summary.
type Category struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	ReorderThresholdKg float64   `json:"reorder_threshold_kg"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Product is a sellable item derived from a category's stock.
type Product struct {
	ID              int64    `json:"id"`
	CategoryID      int64    `json:"category_id"`
	Name            string   `json:"name"`
	SaleUnit        SaleUnit `json:"sale_unit"`
	PackageWeightKg float64  `json:"package_weight_kg"`
	Price           float64  `json:"price"`
	IsActive        bool     `json:"is_active"`
}

// Vendor supplies purchase lots.
type Vendor struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ErrCategoryNotFound indicates a missing category.
var ErrCategoryNotFound = errors.New("catalog: category not found")

// ErrProductNotFound indicates a missing product.
var ErrProductNotFound = errors.New("catalog: product not found")

// ErrCategoryInUse prevents deleting a category whose lots still hold stock.
var ErrCategoryInUse = errors.New("catalog: category has lots with remaining stock")

// ErrInvalidName indicates an empty or oversized name.
var ErrInvalidName = errors.New("catalog: name must be 1-120 characters")

// ErrInvalidThreshold indicates a negative reorder threshold.
var ErrInvalidThreshold = errors.New("catalog: reorder threshold must be >= 0")

// ErrInvalidSaleUnit indicates an unknown sale unit.
var ErrInvalidSaleUnit = errors.New("catalog: unknown sale unit")
