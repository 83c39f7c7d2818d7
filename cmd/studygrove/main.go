package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/studygrove/studygrove/internal/avatar"
	"github.com/studygrove/studygrove/internal/clock"
	"github.com/studygrove/studygrove/internal/config"
	"github.com/studygrove/studygrove/internal/content"
	"github.com/studygrove/studygrove/internal/logger"
	"github.com/studygrove/studygrove/internal/migration"
	"github.com/studygrove/studygrove/internal/notification"
	"github.com/studygrove/studygrove/internal/outbox"
	"github.com/studygrove/studygrove/internal/presence"
	"github.com/studygrove/studygrove/internal/realtime"
	"github.com/studygrove/studygrove/internal/reconcile"
	"github.com/studygrove/studygrove/internal/redisclient"
	"github.com/studygrove/studygrove/internal/scheduler"
	"github.com/studygrove/studygrove/internal/server"
	"github.com/studygrove/studygrove/internal/storage"
	"github.com/studygrove/studygrove/internal/tasks"
	"github.com/studygrove/studygrove/internal/user"
	"github.com/studygrove/studygrove/pkg/db"
	"github.com/studygrove/studygrove/pkg/telemetry"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		telemetry.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisclient.Module,
		storage.Module,
		migration.Module,

		// Async backbone
		outbox.Module,
		tasks.Module,

		// Functional domains
		user.Module,
		content.Module,
		notification.Module,
		realtime.Module,
		presence.Module,
		avatar.Module,
		reconcile.Module,
		scheduler.Module,

		// HTTP surface
		server.Module,

		fx.Invoke(tasks.RunRouter),
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
