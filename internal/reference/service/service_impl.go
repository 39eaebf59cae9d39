package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/routepay/internal/clock"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	referencedomain "github.com/smallbiznis/routepay/internal/reference/domain"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock            `optional:"true"`
	Source referencedomain.Source `optional:"true"`

	DriverRepo driverdomain.Repository
	RouteRepo  routedomain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	source referencedomain.Source

	driverRepo driverdomain.Repository
	routeRepo  routedomain.Repository
}

func New(p Params) referencedomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("reference.service"),
		genID:  p.GenID,
		clock:  c,
		source: p.Source,

		driverRepo: p.DriverRepo,
		routeRepo:  p.RouteRepo,
	}
}

// SyncReference pulls the roster and rate sheet and upserts them in one
// transaction. Drivers match on code, routes on the slug of their name.
func (s *Service) SyncReference(ctx context.Context) (referencedomain.SyncResult, error) {
	var result referencedomain.SyncResult
	if s.source == nil {
		return result, referencedomain.ErrSourceNotConfigured
	}

	drivers, err := s.source.ListDrivers(ctx)
	if err != nil {
		return result, fmt.Errorf("list drivers: %w", err)
	}
	routes, err := s.source.ListRoutes(ctx)
	if err != nil {
		return result, fmt.Errorf("list routes: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		driverCounts, err := s.syncDrivers(ctx, tx, drivers)
		if err != nil {
			return err
		}
		routeCounts, err := s.syncRoutes(ctx, tx, routes)
		if err != nil {
			return err
		}
		result = referencedomain.SyncResult{Drivers: driverCounts, Routes: routeCounts}
		return nil
	})
	if err != nil {
		return referencedomain.SyncResult{}, err
	}

	s.log.Info("reference synced",
		zap.Any("drivers", result.Drivers),
		zap.Any("routes", result.Routes),
	)
	return result, nil
}

func (s *Service) syncDrivers(ctx context.Context, tx *gorm.DB, records []referencedomain.DriverRecord) (referencedomain.SyncCounts, error) {
	var counts referencedomain.SyncCounts
	now := s.clock.Now()
	for _, rec := range records {
		code := driverdomain.NormalizeCode(rec.Code)
		if code == "" {
			counts.Skipped++
			continue
		}
		existing, err := s.driverRepo.FindByCode(ctx, tx, code)
		if err != nil {
			return counts, err
		}
		if existing == nil {
			d := driverdomain.DriverProfile{
				ID:         s.genID.Generate(),
				DriverCode: code,
				FullName:   strings.TrimSpace(rec.FullName),
				SalaryType: strings.TrimSpace(rec.SalaryType),
				Schedule:   strings.TrimSpace(rec.Schedule),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := s.driverRepo.Insert(ctx, tx, &d); err != nil {
				return counts, fmt.Errorf("insert driver %s: %w", code, err)
			}
			counts.Created++
			continue
		}

		next := *existing
		next.FullName = strings.TrimSpace(rec.FullName)
		next.SalaryType = strings.TrimSpace(rec.SalaryType)
		next.Schedule = strings.TrimSpace(rec.Schedule)
		if next.FullName == existing.FullName && next.SalaryType == existing.SalaryType && next.Schedule == existing.Schedule {
			counts.Unchanged++
			continue
		}
		next.UpdatedAt = now
		if err := s.driverRepo.Update(ctx, tx, &next); err != nil {
			return counts, fmt.Errorf("update driver %s: %w", code, err)
		}
		counts.Updated++
	}
	return counts, nil
}

func (s *Service) syncRoutes(ctx context.Context, tx *gorm.DB, records []referencedomain.RouteRecord) (referencedomain.SyncCounts, error) {
	var counts referencedomain.SyncCounts
	now := s.clock.Now()
	for _, rec := range records {
		name := strings.TrimSpace(rec.Name)
		code := slug.Make(name)
		if code == "" {
			counts.Skipped++
			continue
		}
		next := routedomain.Route{
			Code:                      code,
			Name:                      name,
			ZipCodes:                  strings.Join(rec.ZipCodes, ", "),
			RatePerStop:               rec.RatePerStop,
			RatePerStopCompanyVehicle: rec.RatePerStopCompanyVehicle,
			BaseRate:                  rec.BaseRate,
			Zone:                      strings.TrimSpace(rec.Zone),
			Schedule:                  strings.TrimSpace(rec.Schedule),
			UpdatedAt:                 now,
		}

		existing, err := s.routeRepo.FindByCode(ctx, tx, code)
		if err != nil {
			return counts, err
		}
		if existing == nil {
			next.ID = s.genID.Generate()
			next.CreatedAt = now
			if err := s.routeRepo.Insert(ctx, tx, &next); err != nil {
				return counts, fmt.Errorf("insert route %s: %w", code, err)
			}
			counts.Created++
			continue
		}
		if sameRoute(*existing, next) {
			counts.Unchanged++
			continue
		}
		next.ID = existing.ID
		next.CreatedAt = existing.CreatedAt
		if err := s.routeRepo.Update(ctx, tx, &next); err != nil {
			return counts, fmt.Errorf("update route %s: %w", code, err)
		}
		counts.Updated++
	}
	return counts, nil
}

func sameRoute(a, b routedomain.Route) bool {
	return a.Name == b.Name &&
		a.ZipCodes == b.ZipCodes &&
		a.RatePerStop.Equal(b.RatePerStop) &&
		a.RatePerStopCompanyVehicle.Equal(b.RatePerStopCompanyVehicle) &&
		a.BaseRate.Equal(b.BaseRate) &&
		a.Zone == b.Zone &&
		a.Schedule == b.Schedule
}
