package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logpkg "clinic-roomsync/common/logger"
	"clinic-roomsync/internal/config"
	"clinic-roomsync/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync service",
	Long: `Start the sync service: warm the stores from the last Redis snapshot,
connect the realtime channel, run the initial REST sync and serve the HTTP API
until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 初始化日志
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "clinic-roomsync")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting clinic-roomsync service",
		zap.String("api_base_url", cfg.API.BaseURL),
		zap.String("realtime_url", cfg.Realtime.URL),
		zap.String("http_addr", cfg.HTTP.Addr),
	)

	svc, err := service.NewSyncService(cfg, log)
	if err != nil {
		log.Error("Failed to create sync service", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if err := svc.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case runErr = <-errChan:
		log.Error("Service error", zap.Error(runErr))
	}
	cancel()

	if err := svc.Stop(ctx); err != nil {
		log.Error("Error stopping service", zap.Error(err))
	}

	log.Info("Service stopped")
	return runErr
}
