package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/routepay/internal/clock"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	"github.com/smallbiznis/routepay/internal/lock"
	"github.com/smallbiznis/routepay/internal/observability/logger"
	"github.com/smallbiznis/routepay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock `optional:"true"`
	Locker lock.Locker `optional:"true"`

	Repo driverdomain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	locker lock.Locker

	repo driverdomain.Repository
}

func New(p Params) driverdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	locker := p.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("driver.service"),
		genID:  p.GenID,
		clock:  c,
		locker: locker,
		repo:   p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req driverdomain.CreateRequest) (*driverdomain.DriverProfile, error) {
	code := driverdomain.NormalizeCode(req.DriverCode)
	if code == "" {
		return nil, driverdomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, driverdomain.ErrInvalidName
	}

	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, driverdomain.ErrAlreadyExists
	}

	now := s.clock.Now()
	d := driverdomain.DriverProfile{
		ID:         s.genID.Generate(),
		DriverCode: code,
		FullName:   name,
		SalaryType: strings.TrimSpace(req.SalaryType),
		Schedule:   strings.TrimSpace(req.Schedule),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, s.db, &d); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, driverdomain.ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert driver: %w", err)
	}

	logger.WithDriver(s.log, code).Info("driver created", zap.String("salary_type", d.SalaryType))
	return &d, nil
}

func (s *Service) Get(ctx context.Context, code string) (*driverdomain.DriverProfile, error) {
	code = driverdomain.NormalizeCode(code)
	if code == "" {
		return nil, driverdomain.ErrInvalidCode
	}
	d, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, driverdomain.ErrNotFound
	}
	return d, nil
}

func (s *Service) List(ctx context.Context) ([]driverdomain.DriverProfile, error) {
	return s.repo.List(ctx, s.db)
}

// Update changes profile fields only. A salary type change affects rates on
// the next payroll recalculation, not retroactively on its own.
func (s *Service) Update(ctx context.Context, code string, req driverdomain.UpdateRequest) (*driverdomain.DriverProfile, error) {
	current, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	next := *current
	if req.FullName != nil {
		next.FullName = strings.TrimSpace(*req.FullName)
		if next.FullName == "" {
			return nil, driverdomain.ErrInvalidName
		}
	}
	if req.SalaryType != nil {
		next.SalaryType = strings.TrimSpace(*req.SalaryType)
	}
	if req.Schedule != nil {
		next.Schedule = strings.TrimSpace(*req.Schedule)
	}
	if next.FullName == current.FullName && next.SalaryType == current.SalaryType && next.Schedule == current.Schedule {
		return current, nil
	}

	next.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, &next); err != nil {
		return nil, fmt.Errorf("update driver: %w", err)
	}
	logger.WithDriver(s.log, next.DriverCode).Info("driver updated")
	return &next, nil
}

// Delete takes the driver lock so an in-flight upload cannot recreate
// payroll rows for a driver being removed.
func (s *Service) Delete(ctx context.Context, code string) error {
	d, err := s.Get(ctx, code)
	if err != nil {
		return err
	}

	release, err := s.locker.Lock(ctx, lock.DriverKey(d.ID))
	if err != nil {
		return err
	}
	defer release()

	deleted, err := s.repo.Delete(ctx, s.db, d.ID)
	if err != nil {
		return fmt.Errorf("delete driver: %w", err)
	}
	if deleted == 0 {
		return driverdomain.ErrNotFound
	}
	logger.WithDriver(s.log, d.DriverCode).Info("driver deleted")
	return nil
}
