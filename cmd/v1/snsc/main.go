package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatnetlabs/chatnet/internal/v1/logging"
	"github.com/chatnetlabs/chatnet/internal/v1/snsclient"
	"github.com/chatnetlabs/chatnet/internal/v1/termio"
)

func newRootCmd() *cobra.Command {
	var (
		flagHost     string
		flagPort     string
		flagUsername string
	)

	root := &cobra.Command{
		Use:   "snsc -h <host> -u <username> -p <port>",
		Short: "Interactive social-network client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flagHost, flagPort, flagUsername)
		},
	}

	// Claim the help flag without a shorthand so -h can mean host.
	root.PersistentFlags().Bool("help", false, "help for snsc")
	root.Flags().StringVarP(&flagHost, "host", "h", "localhost", "server host")
	root.Flags().StringVarP(&flagPort, "port", "p", "3010", "server port")
	root.Flags().StringVarP(&flagUsername, "username", "u", "", "username (required)")
	_ = root.MarkFlagRequired("username")

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(host, port, username string) error {
	if err := logging.Initialize(true); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	baseURL := "http://" + net.JoinHostPort(host, port)
	console := termio.NewStdio()
	client := snsclient.New(baseURL, username, console, console)
	if err := client.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
