package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/api"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/config"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/logging"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/services"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/websocket"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "server",
		Short:         "Trading account connection service for MT5 and cTrader",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "routes",
		Short: "Print the registered HTTP routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			reg := newRegistry(cfg, logger, mockClients(logger))
			router := api.SetupRouter(reg, nil, services.NewMemoryStateStore(), websocket.NewHub(logger), cfg, logger)
			return api.PrintRoutes(cmd.OutOrStdout(), router)
		},
	})

	return root
}

// setup loads the environment and configuration and builds the process logger
func setup() (*config.Config, *logrus.Logger, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Logging)
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}
	return cfg, logger, nil
}
