package service

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	ratingdomain "github.com/smallbiznis/routepay/internal/rating/domain"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	"go.uber.org/zap"
)

type zipIndex struct {
	log      *zap.Logger
	byZip    map[string]*routedomain.Route
	overlaps []ratingdomain.Overlap
}

// BuildIndex maps every normalized ZIP to a route. Routes are considered in
// ascending ID order and the first claimant of a ZIP keeps it. With strict
// set, any overlap fails the build.
func BuildIndex(log *zap.Logger, routes []routedomain.Route, strict bool) (ratingdomain.Index, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ordered := make([]routedomain.Route, len(routes))
	copy(ordered, routes)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	idx := &zipIndex{log: log, byZip: make(map[string]*routedomain.Route)}
	for i := range ordered {
		route := &ordered[i]
		for _, token := range route.ZipTokens() {
			zip := ratingdomain.NormalizeZip(token)
			if zip == "" {
				continue
			}
			owner, taken := idx.byZip[zip]
			if !taken {
				idx.byZip[zip] = route
				continue
			}
			if owner.ID == route.ID {
				continue
			}
			idx.overlaps = append(idx.overlaps, ratingdomain.Overlap{Zip: zip, Winner: owner.ID, Loser: route.ID})
			log.Warn("zip claimed by multiple routes",
				zap.String("zip", zip),
				zap.String("winner_route", owner.Name),
				zap.String("ignored_route", route.Name),
			)
		}
	}

	if strict && len(idx.overlaps) > 0 {
		first := idx.overlaps[0]
		return nil, fmt.Errorf("%w: %s claimed by routes %s and %s (%d overlaps)",
			ratingdomain.ErrZipOverlap, first.Zip, first.Winner, first.Loser, len(idx.overlaps))
	}
	return idx, nil
}

func (i *zipIndex) Route(zip string) (*routedomain.Route, bool) {
	route, ok := i.byZip[ratingdomain.NormalizeZip(zip)]
	return route, ok
}

func (i *zipIndex) RateFor(zip, salaryType string) ratingdomain.Rate {
	route, ok := i.Route(zip)
	if !ok {
		i.log.Warn("no route for zip, rate is zero", zap.String("zip", zip))
		return ratingdomain.Rate{Amount: decimal.Zero}
	}
	class, known := ratingdomain.ClassifySalary(salaryType)
	if !known {
		i.log.Warn("unknown salary type, using regular rate",
			zap.String("salary_type", salaryType),
			zap.String("route", route.Name),
		)
	}
	return ratingdomain.Rate{
		Amount:    ratingdomain.RateForClass(*route, class),
		RouteID:   route.ID,
		RouteName: route.Name,
		Matched:   true,
	}
}

func (i *zipIndex) Overlaps() []ratingdomain.Overlap {
	return i.overlaps
}

func (i *zipIndex) Len() int {
	return len(i.byZip)
}
