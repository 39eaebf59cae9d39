package repository

import (
	"context"

	"github.com/smallbiznis/routepay/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic gorm-backed store for simple entities.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	BatchCreate(ctx context.Context, resources []*T) error
	Update(ctx context.Context, id any, values any) error
	Delete(ctx context.Context, id any) error
	Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
}
