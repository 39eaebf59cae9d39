package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, driver *DriverProfile) error
	Update(ctx context.Context, db *gorm.DB, driver *DriverProfile) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*DriverProfile, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*DriverProfile, error)
	// ListPayable returns drivers with a non-empty driver code.
	ListPayable(ctx context.Context, db *gorm.DB) ([]DriverProfile, error)
	List(ctx context.Context, db *gorm.DB) ([]DriverProfile, error)
	// Delete removes the driver and every row that references them.
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
}

var (
	ErrInvalidCode   = errors.New("invalid_driver_code")
	ErrInvalidName   = errors.New("invalid_full_name")
	ErrNotFound      = errors.New("driver_not_found")
	ErrAlreadyExists = errors.New("driver_already_exists")
)
