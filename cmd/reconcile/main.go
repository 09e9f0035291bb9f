package main

import (
	"github.com/ajoure/reconcile/internal/clock"
	"github.com/ajoure/reconcile/internal/config"
	"github.com/ajoure/reconcile/internal/logger"
	"github.com/ajoure/reconcile/internal/metrics"
	"github.com/ajoure/reconcile/internal/migration"
	"github.com/ajoure/reconcile/internal/server"
	"github.com/ajoure/reconcile/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		migration.Module,
		server.Module,
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
