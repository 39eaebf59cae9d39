package validate

import (
	"github.com/smallbiznis/routepay/internal/validate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("validate.service",
	fx.Provide(service.New),
)
