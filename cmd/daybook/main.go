package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/ownaday/daybook/internal/migration"
	"github.com/ownaday/daybook/internal/observability"
	"github.com/ownaday/daybook/internal/server"
	"github.com/ownaday/daybook/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
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
