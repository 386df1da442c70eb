package api

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/config"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/handlers"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/middleware"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform/ctrader"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/registry"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/services"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/websocket"
)

// CTraderEndpoints returns the cTrader endpoints with the configured overrides applied
func CTraderEndpoints(cfg config.CTraderConfig) ctrader.Endpoints {
	endpoints := ctrader.DefaultEndpoints()
	if cfg.ConnectURL != "" {
		endpoints.Connect = cfg.ConnectURL
	}
	return endpoints
}

// SetupRouter configures all routes and returns the router. accountService may be nil when
// no database is configured.
func SetupRouter(
	reg *registry.Registry,
	accountService services.AccountService,
	stateStore services.StateStore,
	wsHub *websocket.Hub,
	cfg *config.Config,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestLogger(logger))
	router.NotFoundHandler = http.HandlerFunc(jsonError(http.StatusNotFound, "not found"))
	router.MethodNotAllowedHandler = http.HandlerFunc(jsonError(http.StatusMethodNotAllowed, "method not allowed"))

	router.HandleFunc("/api/health", HealthHandler(reg, cfg.Server.UseMockData)).Methods("GET")
	router.HandleFunc("/api/routes", PrintRoutesHandler(router)).Methods("GET")

	// WebSocket route
	router.HandleFunc("/ws", wsHub.HandleWebSocket)

	signer := ctrader.NewStateSigner([]byte(cfg.CTrader.StateSecret), ctrader.DefaultStateTTL)

	mt5Handler := handlers.NewMT5Handler(reg, logger)
	ctraderHandler := handlers.NewCTraderHandler(cfg.CTrader, CTraderEndpoints(cfg.CTrader), signer,
		stateStore, services.NewPendingAuthorizations(), reg, logger)
	accountHandler := handlers.NewAccountHandler(reg, accountService, logger)

	apiRouter := router.PathPrefix("/api").Subrouter()
	mt5Handler.RegisterRoutes(apiRouter)
	ctraderHandler.RegisterRoutes(apiRouter)
	accountHandler.RegisterRoutes(apiRouter)

	return router
}

func jsonError(status int, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg})
	}
}
