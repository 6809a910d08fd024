package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tyrowin/gorelay/internal/config"
	"github.com/Tyrowin/gorelay/internal/logging"
	"github.com/Tyrowin/gorelay/internal/server"
)

var version = "dev"

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of relay",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relay version %s\n", version)
		},
	}

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok (port %s, %d allowed origins)\n",
				cfg.Port, len(cfg.AllowedOrigins))
			return nil
		},
	}

	rootCmd = &cobra.Command{
		Use:          "relay",
		Short:        "Realtime chat and signaling relay",
		Long:         `relay serves an authenticated chat router on /ws and an anonymous WebRTC signaling relay on /signal`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a configuration file")
	rootCmd.AddCommand(versionCmd, checkCmd)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return errors.Wrap(err, "create logger")
	}
	defer func() { _ = logger.Sync() }()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "create server")
	}

	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())
	logger.Info("Starting relay", zap.String("version", version), zap.String("addr", cfg.Port))

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.StartServer(httpServer, logger)
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrors:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("HTTP shutdown incomplete", zap.Error(err))
	}
	if err := srv.Hub().Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("Hub shutdown incomplete", zap.Error(err))
	}
	logger.Info("Relay stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
