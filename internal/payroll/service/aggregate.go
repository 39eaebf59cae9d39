package service

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/routepay/internal/config"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	payrolldomain "github.com/smallbiznis/routepay/internal/payroll/domain"
	"github.com/smallbiznis/routepay/internal/payperiod"
	ratingdomain "github.com/smallbiznis/routepay/internal/rating/domain"
)

type periodTotals struct {
	period   payperiod.Period
	zipStops map[string]int
	days     map[string]struct{}
	stops    int
}

// groupByPeriod buckets delivered events by the pay period of their
// creation time in loc.
func groupByPeriod(events []deliverydomain.DeliveryEvent, loc *time.Location) map[int]*periodTotals {
	groups := make(map[int]*periodTotals)
	for _, ev := range events {
		local := ev.CreatedAt.In(loc)
		period := payperiod.Bucket(local)
		g, ok := groups[period.Key]
		if !ok {
			g = &periodTotals{
				period:   period,
				zipStops: make(map[string]int),
				days:     make(map[string]struct{}),
			}
			groups[period.Key] = g
		}
		zip := ""
		if ev.ZipCode != nil {
			zip = ratingdomain.NormalizeZip(*ev.ZipCode)
		}
		g.zipStops[zip]++
		g.days[local.Format("2006-01-02")] = struct{}{}
		g.stops++
	}
	return groups
}

// price turns a period's stop counts into pay. Lines are ordered by ZIP.
func price(g *periodTotals, idx ratingdomain.Index, salaryType string, policy ratingdomain.Policy) payrolldomain.Computation {
	zips := make([]string, 0, len(g.zipStops))
	for zip := range g.zipStops {
		zips = append(zips, zip)
	}
	sort.Strings(zips)

	amount := decimal.Zero
	lines := make([]payrolldomain.ZipLine, 0, len(zips))
	for _, zip := range zips {
		stops := g.zipStops[zip]
		rate := idx.RateFor(zip, salaryType).Amount
		lineAmount := rate.Mul(decimal.NewFromInt(int64(stops))).Round(2)
		amount = amount.Add(lineAmount)
		lines = append(lines, payrolldomain.ZipLine{
			Zip:       zip,
			StopCount: stops,
			Rate:      rate,
			Amount:    lineAmount,
		})
	}

	kind := config.PayPolicyPerStop
	if policy.Kind == config.PayPolicyFlatDaily {
		kind = config.PayPolicyFlatDaily
		amount = ratingdomain.FlatDailyAmount(policy.DailyRate, len(g.days))
	}

	return payrolldomain.Computation{
		PayPeriodKey:    g.period.Key,
		PayPeriod:       g.period.Label,
		PeriodStart:     g.period.Start,
		PeriodEnd:       g.period.End,
		Breakdown:       lines,
		TotalDeliveries: g.stops,
		DaysWorked:      len(g.days),
		PayPolicy:       kind,
		Amount:          amount.Round(2),
	}
}

// emptyPeriod is the content of a period that lost all its deliveries.
func emptyPeriod(period payperiod.Period, policyKind string) payrolldomain.Computation {
	return payrolldomain.Computation{
		PayPeriodKey: period.Key,
		PayPeriod:    period.Label,
		PeriodStart:  period.Start,
		PeriodEnd:    period.End,
		Breakdown:    []payrolldomain.ZipLine{},
		PayPolicy:    policyKind,
		Amount:       decimal.Zero,
	}
}
