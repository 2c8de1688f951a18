package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/healthchat/internal/config"
	"github.com/user/healthchat/internal/gateway"
	"github.com/user/healthchat/internal/scheduler"
	"github.com/user/healthchat/internal/server"
	"github.com/user/healthchat/internal/types"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background sync schedule",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	pidFile, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := gateway.New(a.engine, int64(cfg.MaxConcurrent))
	gw.Start(ctx)
	defer gw.Stop()

	// The schedule is re-read from disk so "config set sync.*" plus a
	// reload takes effect without a restart.
	sched := scheduler.New(syncPlanFromFile, func(ctx context.Context, subject types.SubjectID) error {
		_, err := a.syncer.FetchAll(ctx, subject, nil)
		return err
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	srv := server.New(gw, a.syncer, a.records, a.summaries)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.Addr) }()

	slog.Info("healthchat started",
		"data_dir", cfg.DataDir,
		"store", cfg.Store.Backend,
		"mcp_url", cfg.MCP.URL,
		"max_concurrent", cfg.MaxConcurrent,
		"pid_file", pidFile,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http api: %w", err)
			}
			return nil
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, reloading sync schedule")
				if err := sched.Reload(); err != nil {
					slog.Error("reload scheduler failed", "error", err)
				}
				continue
			}
			slog.Info("shutting down", "signal", sig)
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		}
	}
}

func syncPlanFromFile() (scheduler.Plan, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return scheduler.Plan{}, err
	}
	plan := scheduler.Plan{Schedule: cfg.Sync.Schedule}
	for _, s := range cfg.Sync.Subjects {
		if id := types.ParseSubject(s); id != "" {
			plan.Subjects = append(plan.Subjects, id)
		}
	}
	return plan, nil
}
