package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/autorecharge"
	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/lock"
	"github.com/smallbiznis/credits/internal/migration"
	"github.com/smallbiznis/credits/internal/observability"
	"github.com/smallbiznis/credits/internal/payment"
	"github.com/smallbiznis/credits/internal/ratelimit"
	"github.com/smallbiznis/credits/internal/recharge"
	"github.com/smallbiznis/credits/internal/recharge/worker"
	"github.com/smallbiznis/credits/internal/redisconn"
	"github.com/smallbiznis/credits/internal/server"
	"github.com/smallbiznis/credits/internal/wallet"
	"github.com/smallbiznis/credits/pkg/db"
	"github.com/smallbiznis/credits/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		redisconn.Module,
		lock.Module,

		// Functional Domains
		wallet.Module,
		autorecharge.Module,
		recharge.Module,
		worker.Module,
		payment.Module,
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
