package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/slotline/slotline/internal/clock"
	"github.com/slotline/slotline/internal/config"
	"github.com/slotline/slotline/internal/migration"
	"github.com/slotline/slotline/internal/observability"
	"github.com/slotline/slotline/internal/redisconn"
	"github.com/slotline/slotline/internal/scheduler"
	"github.com/slotline/slotline/internal/server"
	"github.com/slotline/slotline/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisconn.Module,
		clock.Module,
		migration.Module,
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
