package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/config"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform/ctrader"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/services"
)

// CTraderHandler runs the cTrader OAuth flow and connects the authorized account
type CTraderHandler struct {
	cfg       config.CTraderConfig
	endpoints ctrader.Endpoints
	signer    *ctrader.StateSigner
	states    services.StateStore
	pending   *services.PendingAuthorizations
	registry  AccountRegistry
	logger    *logrus.Entry
}

// NewCTraderHandler creates a new cTrader handler
func NewCTraderHandler(
	cfg config.CTraderConfig,
	endpoints ctrader.Endpoints,
	signer *ctrader.StateSigner,
	states services.StateStore,
	pending *services.PendingAuthorizations,
	registry AccountRegistry,
	logger *logrus.Logger,
) *CTraderHandler {
	return &CTraderHandler{
		cfg:       cfg,
		endpoints: endpoints,
		signer:    signer,
		states:    states,
		pending:   pending,
		registry:  registry,
		logger:    logger.WithField("component", "ctrader_handler"),
	}
}

// RegisterRoutes registers cTrader routes
func (h *CTraderHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ctrader/test", h.Test).Methods("GET")
	router.HandleFunc("/ctrader/connect", h.Connect).Methods("POST")
	router.HandleFunc("/ctrader/callback", h.Callback).Methods("GET")
}

// CTraderTestResponse reports whether the server side cTrader application is configured
type CTraderTestResponse struct {
	Configured  bool   `json:"configured"`
	Environment string `json:"environment"`
	ClientID    string `json:"clientId,omitempty"`
	RedirectURI string `json:"redirectUri"`
	AuthURL     string `json:"authUrl,omitempty"`
	State       string `json:"state,omitempty"`
}

// CTraderAuthorizeResponse is returned by Connect
type CTraderAuthorizeResponse struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}

// Test reports configuration status and, when configured, a ready authorize URL
func (h *CTraderHandler) Test(w http.ResponseWriter, r *http.Request) {
	env, err := platform.ParseEnvironment(r.URL.Query().Get("environment"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := CTraderTestResponse{
		Configured:  h.cfg.Configured(),
		Environment: string(env),
		RedirectURI: h.cfg.RedirectURI,
	}
	if resp.Configured {
		resp.ClientID = h.cfg.ClientID
		authURL, state, err := h.authorize(r, env, h.cfg.ClientID, services.PendingAuthorization{ClientSecret: h.cfg.ClientSecret})
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		resp.AuthURL = authURL
		resp.State = state
	}
	writeJSON(w, http.StatusOK, resp)
}

// Connect starts an authorization for the supplied or configured application
func (h *CTraderHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req models.CTraderConnectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	env, err := platform.ParseEnvironment(req.Environment)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	clientID := strings.TrimSpace(req.ClientID)
	secret := req.ClientSecret
	if clientID == "" {
		clientID = h.cfg.ClientID
	}
	if secret == "" && clientID == h.cfg.ClientID {
		secret = h.cfg.ClientSecret
	}
	if clientID == "" || secret == "" {
		writeError(w, r, h.logger, platform.NewConnectError(models.PlatformCTrader, platform.ErrServiceNotInitialized,
			"no cTrader client id and secret supplied or configured"))
		return
	}

	authURL, state, err := h.authorize(r, env, clientID, services.PendingAuthorization{
		ClientSecret: secret,
		AccountID:    strings.TrimSpace(req.AccountID),
		Name:         req.Name,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CTraderAuthorizeResponse{AuthURL: authURL, State: state})
}

// authorize issues a signed state, remembers its nonce and parks the client secret
func (h *CTraderHandler) authorize(r *http.Request, env platform.Environment, clientID string, auth services.PendingAuthorization) (string, string, error) {
	state, claims, err := h.signer.Issue(env, clientID)
	if err != nil {
		return "", "", err
	}
	if err := h.states.Remember(r.Context(), claims.Nonce, h.signer.TTL()); err != nil {
		return "", "", err
	}
	h.pending.Put(claims.Nonce, auth, h.signer.TTL())

	oauth := ctrader.NewOAuth(clientID, "", h.cfg.RedirectURI, env, h.endpoints, nil)
	return oauth.AuthorizeURL(state), state, nil
}

// Callback verifies the state, exchanges the code and connects the account
func (h *CTraderHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		writeError(w, r, h.logger, badRequest("authorization denied: %s", denied))
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeError(w, r, h.logger, badRequest("code and state are required"))
		return
	}

	claims, err := h.signer.Verify(state)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	fresh, err := h.states.Consume(r.Context(), claims.Nonce)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !fresh {
		writeError(w, r, h.logger, badRequest("state already used or expired"))
		return
	}

	auth, ok := h.pending.Take(claims.Nonce)
	if !ok {
		if claims.ClientID != h.cfg.ClientID {
			writeError(w, r, h.logger, badRequest("authorization expired, start again"))
			return
		}
		auth.ClientSecret = h.cfg.ClientSecret
	}

	env := platform.Environment(claims.Environment)
	accountID := auth.AccountID
	if accountID == "" {
		accountID = "ctrader_" + strings.ReplaceAll(claims.Nonce, "-", "")[:12]
	}

	ref := platform.TradingAccountRef{
		AccountID: accountID,
		Platform:  models.PlatformCTrader,
		Name:      auth.Name,
		Credentials: platform.CTraderCredentials{
			ClientID:     claims.ClientID,
			ClientSecret: auth.ClientSecret,
			Environment:  env,
			AuthCode:     code,
			RedirectURI:  h.cfg.RedirectURI,
		},
	}
	if _, err := h.registry.ConnectAccount(r.Context(), ref); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := models.ConnectResponse{Success: true, AccountID: accountID, Environment: string(env)}
	snap, err := h.registry.AccountInfo(r.Context(), accountID)
	if err != nil {
		h.logger.WithError(err).WithField("account_id", accountID).Warn("Connected but account info failed")
	} else {
		resp.AccountInfo = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}
