package driver

import (
	"github.com/smallbiznis/routepay/internal/driver/repository"
	"github.com/smallbiznis/routepay/internal/driver/service"
	"go.uber.org/fx"
)

var Module = fx.Module("driver.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
