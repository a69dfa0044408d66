package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/verigate/verigate/internal/authz"
	"github.com/verigate/verigate/internal/clock"
	"github.com/verigate/verigate/internal/config"
	"github.com/verigate/verigate/internal/gateway"
	"github.com/verigate/verigate/internal/integration"
	"github.com/verigate/verigate/internal/ledger"
	"github.com/verigate/verigate/internal/logger"
	"github.com/verigate/verigate/internal/migration"
	"github.com/verigate/verigate/internal/provider/adapters"
	"github.com/verigate/verigate/internal/querylog"
	"github.com/verigate/verigate/internal/ratelimit"
	"github.com/verigate/verigate/internal/scheduler"
	"github.com/verigate/verigate/internal/server"
	"github.com/verigate/verigate/pkg/db"
	"github.com/verigate/verigate/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		telemetry.Module,

		authz.Module,
		integration.Module,
		ledger.Module,
		querylog.Module,
		adapters.Module,
		gateway.Module,
		ratelimit.Module,

		scheduler.Module,
		migration.Module,
		server.Module,
	)

	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			nodeID = parsed
		}
	}
	return snowflake.NewNode(nodeID)
}
