package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() driverdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, d *driverdomain.DriverProfile) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO driver_profiles (id, driver_code, full_name, salary_type, schedule, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.DriverCode,
		d.FullName,
		d.SalaryType,
		d.Schedule,
		d.CreatedAt,
		d.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, d *driverdomain.DriverProfile) error {
	return db.WithContext(ctx).Exec(
		`UPDATE driver_profiles
		 SET full_name = ?, salary_type = ?, schedule = ?, updated_at = ?
		 WHERE id = ?`,
		d.FullName,
		d.SalaryType,
		d.Schedule,
		d.UpdatedAt,
		d.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*driverdomain.DriverProfile, error) {
	var d driverdomain.DriverProfile
	err := db.WithContext(ctx).Raw(
		`SELECT id, driver_code, full_name, salary_type, schedule, created_at, updated_at
		 FROM driver_profiles WHERE id = ?`,
		id,
	).Scan(&d).Error
	if err != nil {
		return nil, err
	}
	if d.ID == 0 {
		return nil, nil
	}
	return &d, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*driverdomain.DriverProfile, error) {
	var d driverdomain.DriverProfile
	err := db.WithContext(ctx).Raw(
		`SELECT id, driver_code, full_name, salary_type, schedule, created_at, updated_at
		 FROM driver_profiles WHERE driver_code = ?`,
		code,
	).Scan(&d).Error
	if err != nil {
		return nil, err
	}
	if d.ID == 0 {
		return nil, nil
	}
	return &d, nil
}

func (r *repo) ListPayable(ctx context.Context, db *gorm.DB) ([]driverdomain.DriverProfile, error) {
	var drivers []driverdomain.DriverProfile
	err := db.WithContext(ctx).Raw(
		`SELECT id, driver_code, full_name, salary_type, schedule, created_at, updated_at
		 FROM driver_profiles WHERE driver_code <> '' ORDER BY id ASC`,
	).Scan(&drivers).Error
	if err != nil {
		return nil, err
	}
	return drivers, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]driverdomain.DriverProfile, error) {
	var drivers []driverdomain.DriverProfile
	err := db.WithContext(ctx).Raw(
		`SELECT id, driver_code, full_name, salary_type, schedule, created_at, updated_at
		 FROM driver_profiles ORDER BY driver_code ASC`,
	).Scan(&drivers).Error
	if err != nil {
		return nil, err
	}
	return drivers, nil
}

// Delete clears dependent rows explicitly; schemas built by AutoMigrate do
// not carry the ON DELETE CASCADE constraints of the SQL migrations.
func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var deleted int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		steps := []string{
			`DELETE FROM address_mismatches
			 WHERE delivery_event_id IN (SELECT id FROM delivery_events WHERE driver_id = ?)`,
			`DELETE FROM delivery_events WHERE driver_id = ?`,
			`DELETE FROM payroll_records WHERE driver_id = ?`,
		}
		for _, stmt := range steps {
			if err := tx.Exec(stmt, id).Error; err != nil {
				return err
			}
		}
		res := tx.Exec(`DELETE FROM driver_profiles WHERE id = ?`, id)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
