package geocode

import (
	"github.com/smallbiznis/routepay/internal/geocode/service"
	"go.uber.org/fx"
)

var Module = fx.Module("geocode.service",
	fx.Provide(service.NewResolver),
)
