package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/nduplat/motorcycle-service-app-sub002/internal/cmd/client"
	serverrun "github.com/nduplat/motorcycle-service-app-sub002/internal/cmd/server"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

func main() {
	rootCmd := clientcmd.NewRoot(clientcmd.BaseURLFromEnv)
	rootCmd.Long = "walkin runs the walk-in queue server and talks to it over HTTP."

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the queue server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			var ov serverrun.Overrides
			ov.DataDir, _ = cmd.Flags().GetString("data-dir")
			ov.GRPCAddr, _ = cmd.Flags().GetString("grpc")
			ov.HTTPAddr, _ = cmd.Flags().GetString("http")
			ov.Store, _ = cmd.Flags().GetString("store")
			ov.Fsync, _ = cmd.Flags().GetString("fsync")
			ov.LogLevel, _ = cmd.Flags().GetString("log-level")
			ov.LogFormat, _ = cmd.Flags().GetString("log-format")

			cfg, err := serverrun.ResolveConfig(configPath, ov)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger, err := logpkg.ApplyConfig(&cfg.Log)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg, Logger: logger}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("config", os.Getenv("WALKIN_CONFIG"), "Config file (.json, .yaml or .yml)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("grpc", "", "gRPC listen address (default :9090)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	serverStartCmd.Flags().String("store", "", "Store backend: memory|pebble|redis|postgres")
	serverStartCmd.Flags().String("fsync", "", "Pebble fsync mode: always|interval|never")
	serverStartCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", "", "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
