// Package app wires the server-side services together for the entrypoint.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/estiakahmed98/chatsync/internal/config"
	"github.com/estiakahmed98/chatsync/internal/database"
	"github.com/estiakahmed98/chatsync/internal/history"
	"github.com/estiakahmed98/chatsync/internal/pubsub"
	"github.com/estiakahmed98/chatsync/internal/server"
	"github.com/estiakahmed98/chatsync/internal/websocket"
)

// Dependencies holds the core services the application is assembled from.
type Dependencies struct {
	Config     *config.Config
	Publisher  pubsub.Publisher
	Subscriber pubsub.Subscriber
	History    *history.Store
	Server     *server.Server
	Bridge     *websocket.Bridge

	cleanup []func()
}

// Build constructs the whole dependency graph from configuration.
func Build(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg}

	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	deps.cleanup = append(deps.cleanup, func() {
		if err := db.Close(context.Background()); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	})
	deps.History = history.NewStore(db, cfg.DBNs, cfg.DBDb)

	bridge := pubsub.NewWatermillBridge()
	deps.cleanup = append(deps.cleanup, func() {
		if err := bridge.Close(); err != nil {
			slog.Error("Failed to close pubsub bridge", "error", err)
		}
	})
	deps.Publisher = bridge
	deps.Subscriber = bridge

	tracingCfg := pubsub.LoadTracingConfigFromEnv()
	if tracingCfg.Enabled {
		tracer, shutdown, err := pubsub.SetupOTel(ctx, tracingCfg)
		if err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
		deps.cleanup = append(deps.cleanup, shutdown)
		deps.Publisher = pubsub.NewTracedPublisher(deps.Publisher, tracer)
		deps.Subscriber = pubsub.NewTracedSubscriber(deps.Subscriber, tracer)
	}

	deps.Bridge = websocket.NewBridge(deps.Publisher, deps.Subscriber)

	deps.Server = server.New(cfg, deps.History, deps.Publisher)
	deps.Server.RegisterRoutes()
	deps.Bridge.RegisterRoutes(deps.Server.E)

	return deps, nil
}

// Run starts the bridge and serves HTTP until shutdown, then releases
// everything Build acquired.
func (d *Dependencies) Run() {
	go d.Bridge.Run()
	d.Server.Start()
	d.Close()
}

// Close releases resources in reverse acquisition order.
func (d *Dependencies) Close() {
	for i := len(d.cleanup) - 1; i >= 0; i-- {
		d.cleanup[i]()
	}
}
