package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatnetlabs/chatnet/internal/v1/chatclient"
	"github.com/chatnetlabs/chatnet/internal/v1/logging"
	"github.com/chatnetlabs/chatnet/internal/v1/termio"
)

func main() {
	root := &cobra.Command{
		Use:   "crc <host> <port>",
		Short: "Interactive chat-room client",
		Args:  cobra.ExactArgs(2),
		RunE:  run,
	}
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(true); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	host := args[0]
	port, err := strconv.Atoi(args[1])
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", args[1])
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	console := termio.NewStdio()
	client := chatclient.New(host, port, console, console)
	if err := client.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
