package repository

import (
	"context"

	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	"gorm.io/gorm"
)

const routeColumns = `id, code, name, zip_codes, rate_per_stop, rate_per_stop_company_vehicle,
	base_rate, zone, schedule, created_at, updated_at`

type repo struct{}

func Provide() routedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rt *routedomain.Route) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO routes (`+routeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.ID,
		rt.Code,
		rt.Name,
		rt.ZipCodes,
		rt.RatePerStop,
		rt.RatePerStopCompanyVehicle,
		rt.BaseRate,
		rt.Zone,
		rt.Schedule,
		rt.CreatedAt,
		rt.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, rt *routedomain.Route) error {
	return db.WithContext(ctx).Exec(
		`UPDATE routes
		 SET name = ?, zip_codes = ?, rate_per_stop = ?, rate_per_stop_company_vehicle = ?,
		     base_rate = ?, zone = ?, schedule = ?, updated_at = ?
		 WHERE id = ?`,
		rt.Name,
		rt.ZipCodes,
		rt.RatePerStop,
		rt.RatePerStopCompanyVehicle,
		rt.BaseRate,
		rt.Zone,
		rt.Schedule,
		rt.UpdatedAt,
		rt.ID,
	).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*routedomain.Route, error) {
	var rt routedomain.Route
	err := db.WithContext(ctx).Raw(
		`SELECT `+routeColumns+` FROM routes WHERE code = ?`,
		code,
	).Scan(&rt).Error
	if err != nil {
		return nil, err
	}
	if rt.ID == 0 {
		return nil, nil
	}
	return &rt, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]routedomain.Route, error) {
	var routes []routedomain.Route
	err := db.WithContext(ctx).Raw(
		`SELECT ` + routeColumns + ` FROM routes ORDER BY id ASC`,
	).Scan(&routes).Error
	if err != nil {
		return nil, err
	}
	return routes, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, code string) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM routes WHERE code = ?`, code)
	return res.RowsAffected, res.Error
}
