package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chatnetlabs/chatnet/internal/v1/config"
	"github.com/chatnetlabs/chatnet/internal/v1/control"
	"github.com/chatnetlabs/chatnet/internal/v1/logging"
	"github.com/chatnetlabs/chatnet/internal/v1/room"
)

func main() {
	root := &cobra.Command{
		Use:   "crsd <port>",
		Short: "Chat-room server: control plane plus per-room chat listeners",
		Args:  cobra.MaximumNArgs(1),
		RunE:  run,
	}
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// .env is optional; the environment itself wins.
	_ = godotenv.Load()

	cfg, err := config.ValidateEnv()
	if err != nil {
		return err
	}
	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	portStr := cfg.CRSPort
	if len(args) == 1 {
		portStr = args[0]
	}
	if portStr == "" {
		return fmt.Errorf("no port given: pass <port> or set CRS_PORT")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", portStr)
	}

	ctx := context.Background()
	srv := control.NewServer(room.NewRegistry())

	errCh := make(chan error, 1)
	go func() {
		logging.Info(ctx, "control server starting", zap.Int("port", port))
		errCh <- srv.ListenAndServe(port)
	}()

	var metricsSrv *http.Server
	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logging.Info(ctx, "metrics listener starting", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error(ctx, "metrics listener failed", zap.Error(err))
			}
		}()
	}

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
		logging.Error(ctx, "control server shutdown failed", zap.Error(err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logging.Error(ctx, "metrics listener shutdown failed", zap.Error(err))
		}
	}

	logging.Info(ctx, "server exiting")
	return nil
}
