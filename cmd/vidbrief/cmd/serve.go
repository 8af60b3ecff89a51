package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	internalhttp "github.com/jmylchreest/vidbrief/internal/http"
	"github.com/jmylchreest/vidbrief/internal/http/handlers"
	"github.com/jmylchreest/vidbrief/internal/pipeline"
	"github.com/jmylchreest/vidbrief/internal/scheduler"
	"github.com/jmylchreest/vidbrief/internal/startup"
	"github.com/jmylchreest/vidbrief/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vidbrief server",
	Long: `Start the vidbrief HTTP server and scheduler.

The server provides:
- REST API to trigger runs and browse run history and summaries
- Inbox webhook endpoint for change notifications
- Health check endpoint
- OpenAPI documentation at /docs

When schedule.enabled is set the inbox is also processed on the
configured cron schedule. Only one run is active at a time.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().Bool("schedule", false, "Process the inbox on the configured cron schedule")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("schedule.enabled", serveCmd.Flags().Lookup("schedule"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Schedule.Enabled {
		if err := scheduler.ValidateCron(cfg.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	if _, err := startup.RecoverAbandonedRuns(ctx, logger, a.runs); err != nil {
		logger.Warn("continuing with unrecovered runs", slog.String("error", err.Error()))
	}

	runner := pipeline.NewRunner(ctx, a.orchestrator).WithLogger(logger)

	var sched *scheduler.Scheduler
	if cfg.Schedule.Enabled {
		sched, err = scheduler.New(runner, cfg.Schedule)
		if err != nil {
			return fmt.Errorf("initializing scheduler: %w", err)
		}
		sched.WithLogger(logger)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	}

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)
	auth := handlers.NewAPIKeyAuth(cfg.Server.APIKey)
	if cfg.Server.APIKey == "" {
		logger.Warn("server.api_key is not set; API endpoints will reject all requests")
	}

	handlers.NewHealthHandler(version.Version).
		WithDB(a.db.DB).
		WithScratchDir(cfg.Storage.ScratchPath()).
		WithRunner(runner).
		Register(server.API())
	handlers.NewRunHandler(runner, a.runs, auth).Register(server.API())
	handlers.NewSummaryHandler(a.summaries, auth).Register(server.API())
	handlers.NewWebhookHandler(runner).Register(server.API())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting vidbrief server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.Bool("schedule", cfg.Schedule.Enabled),
		slog.String("version", version.Version),
	)

	serveErr := server.ListenAndServe(ctx)
	cancel()

	if sched != nil {
		sched.Stop()
	}
	logger.Info("waiting for active run to finish")
	runner.Wait()

	return serveErr
}
