package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/routepay/internal/config"
	ratingdomain "github.com/smallbiznis/routepay/internal/rating/domain"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	log *zap.Logger

	routeRepo routedomain.Repository
	policy    *config.PayrollPolicyHolder
}

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	RouteRepo routedomain.Repository
	Policy    *config.PayrollPolicyHolder `optional:"true"`
}

func NewService(p ServiceParam) ratingdomain.Service {
	return &Service{
		log:       p.Log.Named("rating.service"),
		routeRepo: p.RouteRepo,
		policy:    p.Policy,
	}
}

func (s *Service) LoadIndex(ctx context.Context, db *gorm.DB) (ratingdomain.Index, error) {
	routes, err := s.routeRepo.List(ctx, db)
	if err != nil {
		return nil, err
	}
	idx, err := BuildIndex(s.log, routes, s.currentPolicy().StrictZipOverlap)
	if err != nil {
		return nil, err
	}
	s.log.Debug("zip index built",
		zap.Int("routes", len(routes)),
		zap.Int("zips", idx.Len()),
		zap.Int("overlaps", len(idx.Overlaps())),
	)
	return idx, nil
}

func (s *Service) PolicyFor(driverCode, fullName string) ratingdomain.Policy {
	override, ok := s.currentPolicy().OverrideFor(driverCode, fullName)
	if !ok || !strings.EqualFold(override.Policy, config.PayPolicyFlatDaily) {
		return ratingdomain.Policy{Kind: config.PayPolicyPerStop}
	}
	rate, err := override.Rate()
	if err != nil || !rate.IsPositive() {
		s.log.Warn("flat daily override has no usable rate, paying per stop",
			zap.String("driver_code", driverCode),
			zap.String("daily_rate", override.DailyRate),
		)
		return ratingdomain.Policy{Kind: config.PayPolicyPerStop}
	}
	return ratingdomain.Policy{
		Kind:      config.PayPolicyFlatDaily,
		DailyRate: rate,
	}
}

func (s *Service) currentPolicy() config.PayrollPolicy {
	if s.policy == nil {
		return config.DefaultPayrollPolicy()
	}
	return s.policy.Get()
}
