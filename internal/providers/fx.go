package providers

import (
	"github.com/smallbiznis/routepay/internal/providers/airtable"
	"github.com/smallbiznis/routepay/internal/providers/geocoding/google"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	google.Module,
	airtable.Module,
)
