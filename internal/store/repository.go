package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"signalist/internal/logger"
	"signalist/internal/models"
	"signalist/internal/portfolio"
)

const (
	HoldingsKey = "signalist_portfolio"
	AlertsKey   = "signalist-alerts"
	SettingsKey = "signalist_settings"
)

// ErrUnchanged may be returned by an Update* callback to skip the save.
var ErrUnchanged = errors.New("unchanged")

// Repository reads and writes the holdings and alert collections through a
// Port. Undecodable stored values never surface as errors: holdings fall back
// to the demo seed and alerts to an empty list.
type Repository struct {
	port Port

	// serializes read-modify-write cycles issued through Update* and the
	// first-run seed write
	mu sync.Mutex
}

func NewRepository(port Port) *Repository {
	return &Repository{port: port}
}

func (r *Repository) Holdings(ctx context.Context) ([]models.Holding, error) {
	holdings, ok, err := r.loadHoldings(ctx)
	if err != nil || ok {
		return holdings, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holdingsOrSeed(ctx)
}

// holdingsOrSeed reloads the holdings and writes the seed only if they are
// still missing. Callers hold r.mu, so a concurrent Update cannot be
// overwritten by the seed.
func (r *Repository) holdingsOrSeed(ctx context.Context) ([]models.Holding, error) {
	holdings, ok, err := r.loadHoldings(ctx)
	if err != nil || ok {
		return holdings, err
	}

	seed := portfolio.DefaultHoldings()
	if err := r.SaveHoldings(ctx, seed); err != nil {
		logger.Get().Warnw("failed to persist seed holdings", "error", err)
	}
	return seed, nil
}

// loadHoldings reports ok=false when the stored value is absent or
// undecodable.
func (r *Repository) loadHoldings(ctx context.Context) ([]models.Holding, bool, error) {
	raw, ok, err := r.port.Load(ctx, HoldingsKey)
	if err != nil || !ok {
		return nil, false, err
	}
	var holdings []models.Holding
	if err := json.Unmarshal(raw, &holdings); err != nil {
		logger.Get().Warnw("stored holdings unreadable, reseeding", "key", HoldingsKey, "error", err)
		return nil, false, nil
	}
	return validHoldings(holdings), true, nil
}

func (r *Repository) SaveHoldings(ctx context.Context, holdings []models.Holding) error {
	return r.save(ctx, HoldingsKey, holdings)
}

func (r *Repository) Alerts(ctx context.Context) ([]models.Alert, error) {
	raw, ok, err := r.port.Load(ctx, AlertsKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []models.Alert{}, nil
	}

	var alerts []models.Alert
	if err := json.Unmarshal(raw, &alerts); err != nil {
		logger.Get().Warnw("stored alerts unreadable, starting empty", "key", AlertsKey, "error", err)
		return []models.Alert{}, nil
	}
	return validAlerts(alerts), nil
}

func (r *Repository) SaveAlerts(ctx context.Context, alerts []models.Alert) error {
	return r.save(ctx, AlertsKey, alerts)
}

// Settings returns the stored preferences decoded over the defaults, so
// fields missing from an older document keep their default value.
func (r *Repository) Settings(ctx context.Context) (models.Settings, error) {
	settings := models.DefaultSettings()
	raw, ok, err := r.port.Load(ctx, SettingsKey)
	if err != nil {
		return settings, err
	}
	if !ok {
		return settings, nil
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		logger.Get().Warnw("stored settings unreadable, using defaults", "key", SettingsKey, "error", err)
		return models.DefaultSettings(), nil
	}
	return settings, nil
}

func (r *Repository) SaveSettings(ctx context.Context, settings models.Settings) error {
	return r.save(ctx, SettingsKey, settings)
}

// MergeSettings decodes patch over the stored settings and saves the result.
// Fields absent from patch keep their stored value.
func (r *Repository) MergeSettings(ctx context.Context, patch []byte) (models.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.Settings(ctx)
	if err != nil {
		return current, err
	}
	if err := json.Unmarshal(patch, &current); err != nil {
		return models.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := r.SaveSettings(ctx, current); err != nil {
		return models.Settings{}, err
	}
	return current, nil
}

// UpdateHoldings loads the holdings, applies fn and saves the result.
func (r *Repository) UpdateHoldings(ctx context.Context, fn func([]models.Holding) ([]models.Holding, error)) ([]models.Holding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.holdingsOrSeed(ctx)
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if errors.Is(err, ErrUnchanged) {
		return current, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.SaveHoldings(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// UpdateAlerts loads the alerts, applies fn and saves the result.
func (r *Repository) UpdateAlerts(ctx context.Context, fn func([]models.Alert) ([]models.Alert, error)) ([]models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.Alerts(ctx)
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if errors.Is(err, ErrUnchanged) {
		return current, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.SaveAlerts(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (r *Repository) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.port.Save(ctx, key, data)
}

func validHoldings(in []models.Holding) []models.Holding {
	out := make([]models.Holding, 0, len(in))
	for _, h := range in {
		if h.Symbol == "" || !(h.Shares > 0) || math.IsInf(h.Shares, 0) || math.IsNaN(h.AvgCost) {
			logger.Get().Warnw("dropping invalid stored holding", "symbol", h.Symbol, "shares", h.Shares)
			continue
		}
		out = append(out, h)
	}
	return out
}

func validAlerts(in []models.Alert) []models.Alert {
	out := make([]models.Alert, 0, len(in))
	for _, a := range in {
		if a.ID == "" || a.Symbol == "" {
			logger.Get().Warnw("dropping invalid stored alert", "id", a.ID, "symbol", a.Symbol)
			continue
		}
		out = append(out, a)
	}
	return out
}
