package service

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/routepay/internal/config"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	"github.com/smallbiznis/routepay/pkg/db/option"
	"github.com/smallbiznis/routepay/pkg/db/pagination"
	"github.com/smallbiznis/routepay/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	DriverRepo driverdomain.Repository
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	loc *time.Location

	driverRepo driverdomain.Repository
	events     repository.Repository[deliverydomain.DeliveryEvent]
}

func New(p Params) deliverydomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("delivery.service"),
		loc: p.Cfg.Location(),

		driverRepo: p.DriverRepo,
		events:     repository.ProvideStore[deliverydomain.DeliveryEvent](p.DB),
	}
}

func (s *Service) List(ctx context.Context, req deliverydomain.ListRequest) (deliverydomain.ListResponse, error) {
	page := req.Page.Normalize()

	var filters []option.QueryOption
	if code := driverdomain.NormalizeCode(req.DriverCode); code != "" {
		driver, err := s.driverRepo.FindByCode(ctx, s.db, code)
		if err != nil {
			return deliverydomain.ListResponse{}, err
		}
		if driver == nil {
			return deliverydomain.ListResponse{}, deliverydomain.ErrDriverUnknown
		}
		filters = append(filters, option.WithWhere("driver_id = ?", driver.ID))
	}

	from, to, err := s.dateBounds(req)
	if err != nil {
		return deliverydomain.ListResponse{}, err
	}
	if !from.IsZero() {
		filters = append(filters, option.WithWhere("created_at >= ?", from.UTC()))
	}
	if !to.IsZero() {
		filters = append(filters, option.WithWhere("created_at < ?", to.UTC()))
	}

	total, err := s.events.Count(ctx, nil, filters...)
	if err != nil {
		return deliverydomain.ListResponse{}, err
	}

	opts := append(filters,
		option.WithSortBy("created_at", "desc", "created_at"),
		option.WithSortBy("id", "desc", "id"),
		option.WithLimit(page.Limit),
		option.WithOffset(page.Offset()),
	)
	rows, err := s.events.Find(ctx, nil, opts...)
	if err != nil {
		return deliverydomain.ListResponse{}, err
	}

	data := make([]deliverydomain.DeliveryEvent, 0, len(rows))
	for _, row := range rows {
		data = append(data, *row)
	}
	return deliverydomain.ListResponse{
		Data:     data,
		PageInfo: pagination.BuildPageInfo(page, total),
	}, nil
}

// dateBounds turns the request's date filters into a half-open range. Zero
// values mean unbounded.
func (s *Service) dateBounds(req deliverydomain.ListRequest) (time.Time, time.Time, error) {
	if date := strings.TrimSpace(req.Date); date != "" {
		day, err := deliverydomain.ParseDate(date, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return day, day.AddDate(0, 0, 1), nil
	}

	var from, to time.Time
	if start := strings.TrimSpace(req.StartDate); start != "" {
		day, err := deliverydomain.ParseDate(start, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = day
	}
	if end := strings.TrimSpace(req.EndDate); end != "" {
		day, err := deliverydomain.ParseDate(end, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = day.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return time.Time{}, time.Time{}, deliverydomain.ErrInvalidRange
	}
	return from, to, nil
}
