package airtable

import "go.uber.org/fx"

var Module = fx.Module("providers.airtable",
	fx.Provide(New),
)
