package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/routepay/internal/clock"
	"github.com/smallbiznis/routepay/internal/config"
	"github.com/smallbiznis/routepay/internal/delivery"
	"github.com/smallbiznis/routepay/internal/driver"
	"github.com/smallbiznis/routepay/internal/lock"
	"github.com/smallbiznis/routepay/internal/observability"
	"github.com/smallbiznis/routepay/internal/payroll"
	"github.com/smallbiznis/routepay/internal/rating"
	"github.com/smallbiznis/routepay/internal/route"
	"github.com/smallbiznis/routepay/internal/scheduler"
	"github.com/smallbiznis/routepay/pkg/db"
	"go.uber.org/fx"
)

// Standalone recalculation worker. Runs RecalculateAll on RECALC_INTERVAL
// without the HTTP surface.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		// Domain services required by scheduler
		driver.Module,
		route.Module,
		delivery.Module,
		rating.Module,
		payroll.Module,

		// HTTP surface lives in cmd/routepay.
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
