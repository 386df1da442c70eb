package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/api"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/config"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/db"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform/ctrader"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform/metaapi"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform/mock"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform/mt5"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/registry"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/services"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/tasks"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/telemetry"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/websocket"
)

const shutdownTimeout = 15 * time.Second

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	provider, err := telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	metrics, err := telemetry.NewRegistryMetrics(provider.Meter("trading-accounts"))
	if err != nil {
		return fmt.Errorf("registry metrics: %w", err)
	}

	// Account store
	var accountService services.AccountService
	database, err := db.Connect(cfg.Database, logger)
	switch {
	case err == nil:
		accountService = services.NewAccountService(database, logger)
	case errors.Is(err, db.ErrNotConfigured):
		logger.Warn("POSTGRES_URL not set, account records are not persisted")
	default:
		return fmt.Errorf("database: %w", err)
	}

	// OAuth state nonces
	var stateStore services.StateStore = services.NewMemoryStateStore()
	redisClient, err := db.ConnectRedis(cfg.Redis)
	switch {
	case err == nil:
		stateStore = services.NewRedisStateStore(redisClient)
		defer redisClient.Close()
	case errors.Is(err, db.ErrNotConfigured):
	default:
		logger.WithError(err).Warn("Failed to connect to Redis, keeping OAuth state in memory")
	}

	if cfg.CTrader.StateSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		cfg.CTrader.StateSecret = secret
		logger.Warn("No OAuth state secret configured, using a per-process secret")
	}

	// WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run(ctx)

	clients := remoteClients(cfg, logger)
	if cfg.Server.UseMockData {
		logger.Warn("USE_MOCK_DATA is set, all platform calls return mock data")
		clients = mockClients(logger)
	}

	listeners := []registry.Listener{wsHub, metrics}
	if accountService != nil {
		listeners = append(listeners, accountService)
	}
	reg := newRegistry(cfg, logger, clients, listeners...)

	// Scheduled tasks
	taskManager := tasks.NewManager(logger)
	taskManager.RegisterTask(tasks.NewSessionSweepTask(reg, cfg.Registry.SweepInterval, logger))
	taskManager.StartScheduledTasks()

	router := api.SetupRouter(reg, accountService, stateStore, wsHub, cfg, logger)

	// Set up CORS
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.Origins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           corsMiddleware.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("Server starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			taskManager.StopAllTasks()
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	taskManager.StopAllTasks()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	if err := reg.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("Some sessions failed to close")
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Telemetry shutdown failed")
	}
	return nil
}

func newRegistry(cfg *config.Config, logger *logrus.Logger, clients []platform.Client, listeners ...registry.Listener) *registry.Registry {
	opts := []registry.Option{registry.WithConnectTimeout(cfg.Registry.ConnectTimeout)}
	for _, l := range listeners {
		opts = append(opts, registry.WithListener(l))
	}
	return registry.New(clients, logger, opts...)
}

func remoteClients(cfg *config.Config, logger *logrus.Logger) []platform.Client {
	var metaAPI mt5.API
	if cfg.MetaAPI.Token != "" {
		metaAPI = metaapi.NewClient(metaapi.Options{
			Token:           cfg.MetaAPI.Token,
			ProvisioningURL: cfg.MetaAPI.ProvisioningURL,
			ClientURL:       cfg.MetaAPI.ClientURL,
			Region:          cfg.MetaAPI.Region,
			RateLimit:       cfg.MetaAPI.RateLimit,
		})
	} else {
		logger.Warn("METAAPI_TOKEN not set, MT5 connections will fail")
	}

	return []platform.Client{
		mt5.NewClient(metaAPI, logger, mt5.WithUndeployOnDisconnect(cfg.MetaAPI.UndeployOnDisconnect)),
		ctrader.NewClient(logger, ctrader.WithEndpoints(api.CTraderEndpoints(cfg.CTrader))),
	}
}

func mockClients(logger *logrus.Logger) []platform.Client {
	return []platform.Client{
		mock.NewClient(models.PlatformMT5, logger),
		mock.NewClient(models.PlatformCTrader, logger),
	}
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
