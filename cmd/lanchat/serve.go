package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"lan-chat/internal/db"
	"lan-chat/internal/logging"
	"lan-chat/internal/observability"
	"lan-chat/internal/server"
	"lan-chat/internal/supervisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logging.Warn().Err(err).Msg("flush traces")
			}
		}()

		database, err := db.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close()

		app, err := server.New(ctx, cfg, database)
		if err != nil {
			return err
		}
		defer app.Close()

		httpServer := &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           app.Engine,
			ReadHeaderTimeout: 10 * time.Second,
		}
		tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
		tree.AddAPI(supervisor.NewHTTPService(httpServer, cfg.Server.ShutdownTimeout))
		tree.AddJob(app.Sweeper)

		logging.Info().Str("addr", httpServer.Addr).Str("env", cfg.Server.Environment).Msg("lan-chat listening")
		if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logging.Info().Msg("lan-chat stopped")
		return nil
	},
}
