package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chatnetlabs/chatnet/internal/v1/config"
	"github.com/chatnetlabs/chatnet/internal/v1/logging"
	"github.com/chatnetlabs/chatnet/internal/v1/social"
	"github.com/chatnetlabs/chatnet/internal/v1/store"
	"github.com/chatnetlabs/chatnet/internal/v1/transport"
)

var (
	flagPort    string
	flagDataDir string
)

func main() {
	root := &cobra.Command{
		Use:   "snsd",
		Short: "Social-network server: RPC endpoints plus timeline streams",
		RunE:  run,
	}
	root.Flags().StringVarP(&flagPort, "port", "p", "", "listen port (default SNS_PORT or 3010)")
	root.Flags().StringVarP(&flagDataDir, "data-dir", "d", "", "data directory (default SNS_DATA_DIR or .)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.ValidateEnv()
	if err != nil {
		return err
	}
	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	port := cfg.SNSPort
	if flagPort != "" {
		port = flagPort
	}
	dataDir := cfg.SNSDataDir
	if flagDataDir != "" {
		dataDir = flagDataDir
	}

	ctx := context.Background()

	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := social.NewRegistry(st)
	if err := registry.Load(ctx); err != nil {
		return err
	}

	var origins []string
	if cfg.AllowedOrigins != "" {
		origins = append(origins, cfg.AllowedOrigins)
	}
	srv := transport.NewServer(registry, st, origins)

	errCh := make(chan error, 1)
	go func() {
		logging.Info(ctx, "sns server starting",
			zap.String("port", port), zap.String("data_dir", dataDir))
		errCh <- srv.ListenAndServe(":" + port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logging.Info(ctx, "shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "sns server shutdown failed", zap.Error(err))
	}

	logging.Info(ctx, "server exiting")
	return nil
}
