package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/qrpay/internal/config"
	"github.com/smallbiznis/qrpay/internal/migration"
	"github.com/smallbiznis/qrpay/internal/observability"
	"github.com/smallbiznis/qrpay/internal/server"
	"github.com/smallbiznis/qrpay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
