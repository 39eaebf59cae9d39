package service

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/routepay/internal/address"
	"github.com/smallbiznis/routepay/internal/config"
	geocodedomain "github.com/smallbiznis/routepay/internal/geocode/domain"
	obsmetrics "github.com/smallbiznis/routepay/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultBiasRadiusM    = 50000

	outcomeHit   = "hit"
	outcomeEmpty = "empty"
	outcomeError = "error"
)

type Resolver struct {
	log        *zap.Logger
	provider   geocodedomain.Provider
	metrics    *obsmetrics.Metrics
	tracer     trace.Tracer
	strategies []Strategy
	timeout    time.Duration
	biasRadius float64
}

type ResolverParam struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Provider geocodedomain.Provider `optional:"true"`
	Metrics  *obsmetrics.Metrics    `optional:"true"`
}

func NewResolver(p ResolverParam) geocodedomain.Resolver {
	timeout := p.Cfg.Geocode.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	radius := p.Cfg.Geocode.BiasRadiusM
	if radius <= 0 {
		radius = defaultBiasRadiusM
	}
	return &Resolver{
		log:        p.Log.Named("geocode.resolver"),
		provider:   p.Provider,
		metrics:    p.Metrics,
		tracer:     otel.Tracer("routepay/geocode"),
		strategies: DefaultStrategies(),
		timeout:    timeout,
		biasRadius: radius,
	}
}

func (r *Resolver) Resolve(ctx context.Context, raw string, gps *geocodedomain.LatLng) geocodedomain.Resolution {
	normalized := address.Normalize(raw)
	if normalized.Cleaned == "" {
		return geocodedomain.Resolution{}
	}
	if r.provider == nil {
		return geocodedomain.Resolution{Attempts: []geocodedomain.Attempt{
			{Tier: geocodedomain.TierGeocode, Err: geocodedomain.ErrProviderNotConfigured},
		}}
	}

	ctx, span := r.tracer.Start(ctx, "geocode.resolve")
	defer span.End()

	q := Query{Address: normalized, GPS: gps, BiasRadiusM: r.biasRadius}
	var resolution geocodedomain.Resolution
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			resolution.Attempts = append(resolution.Attempts, geocodedomain.Attempt{Tier: s.Tier, Err: err})
			break
		}

		candidates, err := r.lookup(ctx, s, q)
		resolution.Attempts = append(resolution.Attempts, geocodedomain.Attempt{
			Tier:       s.Tier,
			Candidates: len(candidates),
			Err:        err,
		})
		if err != nil || len(candidates) == 0 {
			continue
		}

		idx, score := 0, 0
		if s.Ranked {
			idx, score = bestCandidate(candidates, normalized)
		}
		winner := candidates[idx]
		resolution.Result = &geocodedomain.Result{
			Location:         winner.Location,
			FormattedAddress: winner.FormattedAddress,
			PartialMatch:     winner.PartialMatch,
			Tier:             s.Tier,
			Score:            score,
		}
		span.SetAttributes(
			attribute.String("geocode.tier", string(s.Tier)),
			attribute.Int("geocode.attempts", len(resolution.Attempts)),
		)
		return resolution
	}

	span.SetAttributes(attribute.Int("geocode.attempts", len(resolution.Attempts)))
	if resolution.AllFailed() {
		span.SetStatus(codes.Error, "all geocode tiers failed")
	}
	return resolution
}

func (r *Resolver) lookup(ctx context.Context, s Strategy, q Query) ([]geocodedomain.Candidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	candidates, err := s.Lookup(callCtx, r.provider, q)
	elapsed := time.Since(start)

	outcome := outcomeHit
	switch {
	case err != nil:
		outcome = outcomeError
		level := zap.WarnLevel
		if errors.Is(err, context.DeadlineExceeded) {
			level = zap.InfoLevel
		}
		if ce := r.log.Check(level, "geocode tier failed"); ce != nil {
			ce.Write(
				zap.String("tier", string(s.Tier)),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
		}
	case len(candidates) == 0:
		outcome = outcomeEmpty
	}
	r.metrics.RecordGeocodeLookup(ctx, string(s.Tier), outcome, elapsed)
	return candidates, err
}
