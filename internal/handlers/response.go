package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform/ctrader"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/registry"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/services"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/utils"
)

// defaultHistoryWindow is used when a history request names no range
const defaultHistoryWindow = 30 * 24 * time.Hour

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// AccountRegistry is the registry surface the handlers depend on
type AccountRegistry interface {
	ConnectAccount(ctx context.Context, ref platform.TradingAccountRef) (string, error)
	AccountInfo(ctx context.Context, accountID string) (models.AccountSnapshot, error)
	History(ctx context.Context, accountID string, start, end time.Time) ([]models.TradeHistoryRecord, error)
	Positions(ctx context.Context, accountID string) ([]models.Position, error)
	DisconnectAccount(ctx context.Context, accountID string) error
	Accounts() []registry.AccountStatus
	Status(accountID string) registry.AccountStatus
}

var _ AccountRegistry = (*registry.Registry)(nil)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, platform.ErrValidation),
		errors.Is(err, registry.ErrInvalidRange),
		errors.Is(err, registry.ErrUnsupportedPlatform),
		errors.Is(err, registry.ErrUnsupportedOperation),
		errors.Is(err, ctrader.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, platform.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, registry.ErrUnknownAccount),
		errors.Is(err, services.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrOperationInProgress),
		errors.Is(err, registry.ErrAccountConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends {"error": ...} with the status for err
func writeError(w http.ResponseWriter, r *http.Request, logger *logrus.Entry, err error) {
	status := statusFor(err)
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status":     status,
		"path":       r.URL.Path,
		"request_id": utils.RequestIDFromContext(r.Context()),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Info("Request rejected")
	}
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// parseRange reads from/to as RFC3339 timestamps or dates. Missing bounds default to the
// last 30 days ending now.
func parseRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	q := r.URL.Query()
	end := now
	if v := q.Get("to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, badRequest("invalid to: %v", err)
		}
		end = t
	}
	start := end.Add(-defaultHistoryWindow)
	if v := q.Get("from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, badRequest("invalid from: %v", err)
		}
		start = t
	}
	return start, end, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func requireAccountID(r *http.Request) (string, error) {
	id := r.URL.Query().Get("accountId")
	if id == "" {
		return "", badRequest("accountId is required")
	}
	return id, nil
}
