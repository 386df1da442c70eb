package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/registry"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/services"
)

// AccountHandler exposes platform-agnostic account operations
type AccountHandler struct {
	registry       AccountRegistry
	accountService services.AccountService
	logger         *logrus.Entry
	now            func() time.Time
}

// NewAccountHandler creates a new account handler. accountService may be nil when no
// database is configured.
func NewAccountHandler(registry AccountRegistry, accountService services.AccountService, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{
		registry:       registry,
		accountService: accountService,
		logger:         logger.WithField("component", "account_handler"),
		now:            time.Now,
	}
}

// RegisterRoutes registers account routes
func (h *AccountHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/accounts", h.GetAccounts).Methods("GET")
	router.HandleFunc("/accounts/{accountId}", h.GetAccount).Methods("GET")
	router.HandleFunc("/accounts/{accountId}/history", h.GetHistory).Methods("GET")
	router.HandleFunc("/accounts/{accountId}/disconnect", h.Disconnect).Methods("POST")
}

// AccountDetail is one registry entry with its bookkeeping row
type AccountDetail struct {
	registry.AccountStatus
	Record *models.AccountRecord `json:"record,omitempty"`
}

// GetAccounts lists registry entries
func (h *AccountHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Accounts())
}

// GetAccount returns the live state and the persisted record of one account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]
	detail := AccountDetail{AccountStatus: h.registry.Status(accountID)}

	if h.accountService != nil {
		record, err := h.accountService.GetAccount(accountID)
		switch {
		case err == nil:
			detail.Record = record
			if detail.Platform == "" {
				detail.Platform = record.Platform
				detail.Name = record.Name
			}
		case !errors.Is(err, services.ErrAccountNotFound):
			writeError(w, r, h.logger, err)
			return
		}
	}

	if detail.Record == nil && detail.Platform == "" {
		writeError(w, r, h.logger, registry.ErrUnknownAccount)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetHistory returns trades for any connected account
func (h *AccountHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	serveHistory(w, r, h.registry, h.logger, mux.Vars(r)["accountId"], h.now())
}

// Disconnect closes the account's session
func (h *AccountHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]
	if err := h.registry.DisconnectAccount(r.Context(), accountID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "accountId": accountID})
}
