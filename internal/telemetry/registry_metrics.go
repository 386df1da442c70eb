package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/registry"
)

// RegistryMetrics records registry transitions as OpenTelemetry instruments
type RegistryMetrics struct {
	connects        metric.Int64Counter
	disconnects     metric.Int64Counter
	connected       metric.Int64UpDownCounter
	connectDuration metric.Float64Histogram

	mu      sync.Mutex
	started map[string]time.Time
	live    map[string]bool
}

// NewRegistryMetrics creates the instruments on meter
func NewRegistryMetrics(meter metric.Meter) (*RegistryMetrics, error) {
	m := &RegistryMetrics{
		started: make(map[string]time.Time),
		live:    make(map[string]bool),
	}
	var err error
	if m.connects, err = meter.Int64Counter("trading_account_connects",
		metric.WithDescription("Account connect attempts by outcome"),
		metric.WithUnit("{connect}")); err != nil {
		return nil, err
	}
	if m.disconnects, err = meter.Int64Counter("trading_account_disconnects",
		metric.WithDescription("Account sessions closed"),
		metric.WithUnit("{disconnect}")); err != nil {
		return nil, err
	}
	if m.connected, err = meter.Int64UpDownCounter("trading_accounts_connected",
		metric.WithDescription("Accounts with a live session"),
		metric.WithUnit("{account}")); err != nil {
		return nil, err
	}
	if m.connectDuration, err = meter.Float64Histogram("trading_account_connect_duration",
		metric.WithDescription("Time from connect start to outcome"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return m, nil
}

// AccountStateChanged implements registry.Listener
func (m *RegistryMetrics) AccountStateChanged(ctx context.Context, ev registry.Event) {
	platformAttr := attribute.String("platform", string(ev.Platform))

	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.State {
	case registry.StateConnecting:
		m.started[ev.AccountID] = ev.At
	case registry.StateConnected:
		// A failed disconnect republishes connected with the error attached
		if ev.Err == nil {
			m.finishConnect(ctx, ev, "success")
		}
		if !m.live[ev.AccountID] {
			m.live[ev.AccountID] = true
			m.connected.Add(ctx, 1, metric.WithAttributes(platformAttr))
		}
	case registry.StateUnconnected:
		if ev.Err != nil {
			m.finishConnect(ctx, ev, outcome(ev.Err))
			return
		}
		if m.live[ev.AccountID] {
			delete(m.live, ev.AccountID)
			m.connected.Add(ctx, -1, metric.WithAttributes(platformAttr))
			m.disconnects.Add(ctx, 1, metric.WithAttributes(platformAttr, attribute.String("reason", ev.Reason)))
		}
	}
}

func (m *RegistryMetrics) finishConnect(ctx context.Context, ev registry.Event, result string) {
	attrs := metric.WithAttributes(attribute.String("platform", string(ev.Platform)), attribute.String("result", result))
	m.connects.Add(ctx, 1, attrs)
	if start, ok := m.started[ev.AccountID]; ok {
		delete(m.started, ev.AccountID)
		m.connectDuration.Record(ctx, float64(ev.At.Sub(start).Milliseconds()), attrs)
	}
}

// outcome names a connect failure kind for metric labels
func outcome(err error) string {
	kinds := []struct {
		kind  error
		label string
	}{
		{platform.ErrValidation, "validation"},
		{platform.ErrInvalidCredentials, "invalid_credentials"},
		{platform.ErrRemoteAccountCreationFailed, "account_creation_failed"},
		{platform.ErrDeploymentFailed, "deployment_failed"},
		{platform.ErrSynchronizationTimeout, "synchronization_timeout"},
		{platform.ErrServiceNotInitialized, "service_not_initialized"},
		{platform.ErrRemoteUnavailable, "remote_unavailable"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return k.label
		}
	}
	return "error"
}
