package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/routepay/internal/clock"
	"github.com/smallbiznis/routepay/internal/config"
	"github.com/smallbiznis/routepay/internal/migration"
	"github.com/smallbiznis/routepay/internal/observability"
	"github.com/smallbiznis/routepay/internal/scheduler"
	"github.com/smallbiznis/routepay/internal/server"
	"github.com/smallbiznis/routepay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// server.Module brings in every domain service and the providers.
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
