package api

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/registry"
)

const version = "1.0.0"

// HealthResponse is the body of the health check
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	MockData bool   `json:"mockData"`
	Accounts int    `json:"accounts"`
}

// HealthHandler responds to health check requests
func HealthHandler(reg *registry.Registry, useMockData bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(HealthResponse{
			Status:   "ok",
			Version:  version,
			MockData: useMockData,
			Accounts: len(reg.Accounts()),
		})
	}
}
