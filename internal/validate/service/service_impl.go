package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/routepay/internal/clock"
	"github.com/smallbiznis/routepay/internal/config"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	geocodedomain "github.com/smallbiznis/routepay/internal/geocode/domain"
	validatedomain "github.com/smallbiznis/routepay/internal/validate/domain"
	"github.com/smallbiznis/routepay/pkg/db/option"
	"github.com/smallbiznis/routepay/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultLookupTimeout = 5 * time.Second

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	GenID    *snowflake.Node
	Clock    clock.Clock                 `optional:"true"`
	Policy   *config.PayrollPolicyHolder `optional:"true"`
	Provider geocodedomain.Provider      `optional:"true"`

	DriverRepo   driverdomain.Repository
	DeliveryRepo deliverydomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	policy   *config.PayrollPolicyHolder
	provider geocodedomain.Provider
	timeout  time.Duration

	driverRepo   driverdomain.Repository
	deliveryRepo deliverydomain.Repository
	mismatches   repository.Repository[validatedomain.AddressMismatch]
}

func New(p Params) validatedomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	timeout := p.Cfg.Geocode.RequestTimeout
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("validate.service"),
		genID:    p.GenID,
		clock:    c,
		policy:   p.Policy,
		provider: p.Provider,
		timeout:  timeout,

		driverRepo:   p.DriverRepo,
		deliveryRepo: p.DeliveryRepo,
		mismatches:   repository.ProvideStore[validatedomain.AddressMismatch](p.DB),
	}
}

func (s *Service) ValidateAddresses(ctx context.Context, driverCode string) (validatedomain.ValidateResult, error) {
	result := validatedomain.ValidateResult{Mismatches: []validatedomain.AddressMismatch{}}
	if s.provider == nil {
		return result, validatedomain.ErrProviderNotConfigured
	}

	var driverID snowflake.ID
	if code := driverdomain.NormalizeCode(driverCode); code != "" {
		driver, err := s.driverRepo.FindByCode(ctx, s.db, code)
		if err != nil {
			return result, err
		}
		if driver == nil {
			return result, validatedomain.ErrDriverNotFound
		}
		driverID = driver.ID
	}

	events, err := s.deliveryRepo.ListAddressUnchecked(ctx, s.db, driverID, s.deliveredEvent())
	if err != nil {
		return result, err
	}
	events, err = s.dropLegacyChecked(ctx, events)
	if err != nil {
		return result, err
	}

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		actual, ok := s.reverse(ctx, ev)
		if !ok {
			// left unstamped so the next run retries it
			result.Skipped++
			continue
		}
		result.Checked++

		mismatch, err := s.record(ctx, ev, actual)
		if err != nil {
			return result, err
		}
		if mismatch != nil {
			result.Mismatches = append(result.Mismatches, *mismatch)
		}
	}

	s.log.Info("addresses validated",
		zap.String("driver_code", driverCode),
		zap.Int("checked", result.Checked),
		zap.Int("skipped", result.Skipped),
		zap.Int("mismatches", len(result.Mismatches)),
	)
	return result, nil
}

// reverse looks up the address at the reported fix. Provider failures and
// empty answers skip the event.
func (s *Service) reverse(ctx context.Context, ev deliverydomain.DeliveryEvent) (string, bool) {
	if ev.ReportedLat == nil || ev.ReportedLng == nil {
		return "", false
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	candidates, err := s.provider.ReverseGeocode(lookupCtx, geocodedomain.LatLng{Lat: *ev.ReportedLat, Lng: *ev.ReportedLng})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Warn("reverse geocode failed", zap.String("barcode", ev.Barcode), zap.Error(err))
		}
		return "", false
	}
	for _, c := range candidates {
		if c.FormattedAddress != "" {
			return c.FormattedAddress, true
		}
	}
	return "", false
}

// record stores the mismatch, if any, and stamps the event as checked in
// one transaction.
func (s *Service) record(ctx context.Context, ev deliverydomain.DeliveryEvent, actual string) (*validatedomain.AddressMismatch, error) {
	now := s.clock.Now()
	score := tokenSortRatio(ev.Address, actual)

	var mismatch *validatedomain.AddressMismatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if score < validatedomain.MismatchThreshold {
			mismatch = &validatedomain.AddressMismatch{
				ID:              s.genID.Generate(),
				DeliveryEventID: ev.ID,
				ExpectedAddress: ev.Address,
				ActualAddress:   actual,
				SimilarityScore: score,
				CreatedAt:       now,
			}
			if err := s.mismatches.WithTrx(tx).Create(ctx, mismatch); err != nil {
				return err
			}
		}
		_, err := s.deliveryRepo.MarkAddressChecked(ctx, tx, []snowflake.ID{ev.ID}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mismatch, nil
}

// dropLegacyChecked removes events that already have a mismatch row but no
// check stamp, stamping them on the way.
func (s *Service) dropLegacyChecked(ctx context.Context, events []deliverydomain.DeliveryEvent) ([]deliverydomain.DeliveryEvent, error) {
	if len(events) == 0 {
		return events, nil
	}
	ids := make([]snowflake.ID, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	existing, err := s.mismatches.Find(ctx, nil, option.WithWhere("delivery_event_id IN ?", ids))
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return events, nil
	}

	done := make(map[snowflake.ID]struct{}, len(existing))
	stamped := make([]snowflake.ID, 0, len(existing))
	for _, m := range existing {
		done[m.DeliveryEventID] = struct{}{}
		stamped = append(stamped, m.DeliveryEventID)
	}
	if _, err := s.deliveryRepo.MarkAddressChecked(ctx, s.db, stamped, s.clock.Now()); err != nil {
		return nil, err
	}

	out := events[:0]
	for _, ev := range events {
		if _, ok := done[ev.ID]; !ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *Service) deliveredEvent() string {
	if s.policy == nil {
		return config.DefaultPayrollPolicy().DeliveredEvent
	}
	return s.policy.Get().DeliveredEvent
}
