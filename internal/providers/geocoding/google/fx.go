package google

import "go.uber.org/fx"

var Module = fx.Module("providers.geocoding.google",
	fx.Provide(New),
)
