package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
)

// MT5Handler handles MT5 account requests
type MT5Handler struct {
	registry AccountRegistry
	logger   *logrus.Entry
	now      func() time.Time
}

// NewMT5Handler creates a new MT5 handler
func NewMT5Handler(registry AccountRegistry, logger *logrus.Logger) *MT5Handler {
	return &MT5Handler{
		registry: registry,
		logger:   logger.WithField("component", "mt5_handler"),
		now:      time.Now,
	}
}

// RegisterRoutes registers MT5 routes
func (h *MT5Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/mt5/connect", h.Connect).Methods("POST")
	router.HandleFunc("/mt5/account-info", h.AccountInfo).Methods("GET")
	router.HandleFunc("/mt5/history", h.History).Methods("GET")
	router.HandleFunc("/mt5/positions", h.Positions).Methods("GET")
}

// Connect connects an MT5 account and returns its first snapshot
func (h *MT5Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req models.MT5ConnectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	creds := platform.MT5Credentials{
		Login:    strings.TrimSpace(req.Login),
		Password: req.Password,
		Server:   strings.TrimSpace(req.Server),
	}
	ref := platform.TradingAccountRef{
		AccountID:   "mt5_" + creds.Login,
		Platform:    models.PlatformMT5,
		Name:        req.Name,
		Credentials: creds,
	}

	accountID, err := h.registry.ConnectAccount(r.Context(), ref)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := models.ConnectResponse{Success: true, AccountID: accountID}
	snap, err := h.registry.AccountInfo(r.Context(), accountID)
	if err != nil {
		h.logger.WithError(err).WithField("account_id", accountID).Warn("Connected but account info failed")
	} else {
		resp.AccountInfo = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// AccountInfo returns a fresh snapshot
func (h *MT5Handler) AccountInfo(w http.ResponseWriter, r *http.Request) {
	accountID, err := requireAccountID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	snap, err := h.registry.AccountInfo(r.Context(), accountID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// History returns trades within from/to, defaulting to the last 30 days
func (h *MT5Handler) History(w http.ResponseWriter, r *http.Request) {
	accountID, err := requireAccountID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	serveHistory(w, r, h.registry, h.logger, accountID, h.now())
}

// Positions returns open positions
func (h *MT5Handler) Positions(w http.ResponseWriter, r *http.Request) {
	accountID, err := requireAccountID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	positions, err := h.registry.Positions(r.Context(), accountID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func serveHistory(w http.ResponseWriter, r *http.Request, reg AccountRegistry, logger *logrus.Entry, accountID string, now time.Time) {
	start, end, err := parseRange(r, now)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	trades, err := reg.History(r.Context(), accountID, start, end)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.HistoryResponse{
		AccountID: accountID,
		From:      start.UTC(),
		To:        end.UTC(),
		Trades:    trades,
	})
}
