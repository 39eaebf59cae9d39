package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, route *Route) error
	Update(ctx context.Context, db *gorm.DB, route *Route) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Route, error)
	// List returns every route ordered by ascending ID, which is creation order.
	List(ctx context.Context, db *gorm.DB) ([]Route, error)
	Delete(ctx context.Context, db *gorm.DB, code string) (int64, error)
}

var (
	ErrInvalidName = errors.New("invalid_route_name")
	ErrInvalidZip  = errors.New("invalid_zip_codes")
	ErrInvalidRate = errors.New("invalid_rate")
	ErrNotFound    = errors.New("route_not_found")
)
