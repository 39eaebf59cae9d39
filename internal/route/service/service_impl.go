package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/routepay/internal/clock"
	ratingdomain "github.com/smallbiznis/routepay/internal/rating/domain"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock `optional:"true"`

	Repo routedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	repo routedomain.Repository
}

func New(p Params) routedomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("route.service"),
		genID: p.GenID,
		clock: c,
		repo:  p.Repo,
	}
}

// Upsert creates or replaces the route named by req. ZIPs are stored in
// their normalized 5-digit form; ZIPs already claimed by another route are
// kept and logged, the rate index decides the winner.
func (s *Service) Upsert(ctx context.Context, req routedomain.UpsertRequest) (routedomain.UpsertResult, error) {
	var result routedomain.UpsertResult

	name := strings.TrimSpace(req.Name)
	code := slug.Make(name)
	if code == "" {
		return result, routedomain.ErrInvalidName
	}
	zips, err := normalizeZips(req.ZipCodes)
	if err != nil {
		return result, err
	}
	if req.RatePerStop.IsNegative() || req.RatePerStopCompanyVehicle.IsNegative() || req.BaseRate.IsNegative() {
		return result, routedomain.ErrInvalidRate
	}

	now := s.clock.Now()
	next := routedomain.Route{
		Code:                      code,
		Name:                      name,
		ZipCodes:                  strings.Join(zips, ", "),
		RatePerStop:               req.RatePerStop,
		RatePerStopCompanyVehicle: req.RatePerStopCompanyVehicle,
		BaseRate:                  req.BaseRate,
		Zone:                      strings.TrimSpace(req.Zone),
		Schedule:                  strings.TrimSpace(req.Schedule),
		UpdatedAt:                 now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if existing == nil {
			next.ID = s.genID.Generate()
			next.CreatedAt = now
			if err := s.repo.Insert(ctx, tx, &next); err != nil {
				return fmt.Errorf("insert route %s: %w", code, err)
			}
			result.Created = true
		} else {
			next.ID = existing.ID
			next.CreatedAt = existing.CreatedAt
			if err := s.repo.Update(ctx, tx, &next); err != nil {
				return fmt.Errorf("update route %s: %w", code, err)
			}
		}
		return s.logOverlaps(ctx, tx, next, zips)
	})
	if err != nil {
		return routedomain.UpsertResult{}, err
	}

	s.log.Info("route saved",
		zap.String("route_code", code),
		zap.Int("zip_count", len(zips)),
		zap.Bool("created", result.Created),
	)
	result.Route = next
	return result, nil
}

func (s *Service) Get(ctx context.Context, code string) (*routedomain.Route, error) {
	rt, err := s.repo.FindByCode(ctx, s.db, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if rt == nil {
		return nil, routedomain.ErrNotFound
	}
	return rt, nil
}

func (s *Service) List(ctx context.Context) ([]routedomain.Route, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) Delete(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return routedomain.ErrNotFound
	}
	deleted, err := s.repo.Delete(ctx, s.db, code)
	if err != nil {
		return fmt.Errorf("delete route: %w", err)
	}
	if deleted == 0 {
		return routedomain.ErrNotFound
	}
	s.log.Info("route deleted", zap.String("route_code", code))
	return nil
}

func (s *Service) logOverlaps(ctx context.Context, tx *gorm.DB, saved routedomain.Route, zips []string) error {
	routes, err := s.repo.List(ctx, tx)
	if err != nil {
		return err
	}
	own := make(map[string]struct{}, len(zips))
	for _, z := range zips {
		own[z] = struct{}{}
	}
	for _, other := range routes {
		if other.ID == saved.ID {
			continue
		}
		for _, tok := range other.ZipTokens() {
			zip := ratingdomain.NormalizeZip(tok)
			if _, ok := own[zip]; ok {
				s.log.Warn("zip claimed by more than one route",
					zap.String("zip", zip),
					zap.String("route_code", saved.Code),
					zap.String("other_route_code", other.Code),
				)
			}
		}
	}
	return nil
}

// normalizeZips accepts 3 to 5 digit ZIPs and ZIP+4, deduplicating while
// keeping input order.
func normalizeZips(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, tok := range raw {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if !validZipToken(tok) {
			return nil, fmt.Errorf("%w: %q", routedomain.ErrInvalidZip, tok)
		}
		zip := ratingdomain.NormalizeZip(tok)
		if _, ok := seen[zip]; ok {
			continue
		}
		seen[zip] = struct{}{}
		out = append(out, zip)
	}
	if len(out) == 0 {
		return nil, routedomain.ErrInvalidZip
	}
	return out, nil
}

func validZipToken(tok string) bool {
	base, plus4, hasPlus4 := strings.Cut(tok, "-")
	if len(base) < 3 || len(base) > 5 || !allDigits(base) {
		return false
	}
	if hasPlus4 && (len(plus4) != 4 || !allDigits(plus4)) {
		return false
	}
	return true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
