package upload

import (
	"github.com/smallbiznis/routepay/internal/upload/service"
	"go.uber.org/fx"
)

var Module = fx.Module("upload.service",
	fx.Provide(service.New),
)
