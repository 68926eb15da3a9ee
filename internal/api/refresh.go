package api

import (
	"context"
	"errors"
	"time"

	"signalist/internal/alerts"
	apperrors "signalist/internal/errors"
	"signalist/internal/logger"
	"signalist/internal/market"
	"signalist/internal/models"
	"signalist/internal/notification"
	"signalist/internal/portfolio"
	"signalist/internal/store"
)

const (
	triggerPoll     = "poll"
	triggerManual   = "manual"
	triggerMutation = "mutation"
)

// ErrStaleRefresh is returned by Refresh when a newer refresh was applied
// while this one was fetching. Nothing from the stale fetch is applied.
var ErrStaleRefresh = errors.New("stale refresh discarded")

// Refresh pulls quotes for the watchlist, the holdings and the active alerts,
// then values the portfolio, evaluates alerts and broadcasts the result.
func (s *Server) Refresh(ctx context.Context, trigger string) (models.DashboardSnapshot, error) {
	token := s.tokens.Add(1)
	start := time.Now()

	holdings, err := s.repo.Holdings(ctx)
	if err != nil {
		return s.Latest(), err
	}
	current, err := s.repo.Alerts(ctx)
	if err != nil {
		return s.Latest(), err
	}

	symbols := market.Symbols(s.watch, portfolio.Symbols(holdings), alerts.Symbols(current))
	snap, err := s.source.Fetch(ctx, symbols)
	if err != nil {
		return s.Latest(), err
	}
	if snap.Err != nil {
		s.metrics.QuoteFetchErrors.Inc()
	}

	dash, err := s.apply(ctx, token, snap)
	if err != nil {
		return dash, err
	}
	s.metrics.ObserveRefresh(trigger, time.Since(start))
	return dash, nil
}

// recompute re-values the portfolio against the last fetched quotes without
// pulling new ones. It takes a fresh token so an in-flight fetch that started
// before the change cannot overwrite it.
func (s *Server) recompute(ctx context.Context) (models.DashboardSnapshot, error) {
	token := s.tokens.Add(1)
	start := time.Now()

	s.mu.RLock()
	snap := s.lastFetch
	s.mu.RUnlock()

	dash, err := s.apply(ctx, token, snap)
	if err != nil {
		return dash, err
	}
	s.metrics.ObserveRefresh(triggerMutation, time.Since(start))
	return dash, nil
}

func (s *Server) apply(ctx context.Context, token uint64, snap market.Snapshot) (models.DashboardSnapshot, error) {
	s.applyMu.Lock()
	if token < s.applied {
		s.applyMu.Unlock()
		s.metrics.StaleDiscarded.Inc()
		logger.Get().Debugw("discarding stale refresh", "token", token, "applied", s.applied)
		return s.Latest(), ErrStaleRefresh
	}
	s.applied = token

	holdings, err := s.repo.Holdings(ctx)
	if err != nil {
		s.applyMu.Unlock()
		return s.Latest(), err
	}

	now := s.now()
	var fired []models.Alert
	evaluated := false
	_, err = s.repo.UpdateAlerts(ctx, func(current []models.Alert) ([]models.Alert, error) {
		evaluated = true
		updated, f := alerts.Evaluate(current, snap.Quotes, now)
		if len(f) == 0 {
			return nil, store.ErrUnchanged
		}
		fired = f
		return updated, nil
	})
	switch {
	case err != nil && !evaluated:
		logger.Get().Errorw("failed to load alerts for evaluation", "error", err)
	case err != nil:
		// unpersisted alerts stay active and fire again next cycle
		logger.Get().Errorw("failed to persist triggered alerts", "error", err)
		fired = nil
	}

	dash := s.dashboard(holdings, snap, now)
	dash.AlertsFired = fired

	s.mu.Lock()
	s.lastFetch = snap
	s.latest = dash
	s.mu.Unlock()

	s.hub.BroadcastJSON(dash)
	s.metrics.WSClients.Set(float64(s.hub.Count()))
	s.applyMu.Unlock()

	s.metrics.SetPortfolio(dash.Portfolio.TotalValue, dash.Portfolio.DayChange)
	s.metrics.SetUsingMockData(snap.UsingMockData)
	s.metrics.AlertsTriggered.Add(float64(len(fired)))
	s.notify(ctx, fired, snap.Quotes)

	return dash, nil
}

// notify sends one message per fired alert unless price alert notifications
// are switched off in the settings.
func (s *Server) notify(ctx context.Context, fired []models.Alert, quotes models.Quotes) {
	if len(fired) == 0 {
		return
	}
	settings, err := s.repo.Settings(ctx)
	if err != nil {
		logger.Get().Warnw("failed to load settings, notifying anyway", "error", err)
	} else if !settings.Notifications.PriceAlerts {
		logger.Get().Debugw("price alert notifications disabled", "fired", len(fired))
		return
	}

	for _, a := range fired {
		msg := notification.ForAlert(a, quotes[a.Symbol].Price)
		if err := s.notifier.Send(ctx, msg); err != nil {
			logger.Get().Warnw("alert notification failed", "alert", a.ID, "symbol", a.Symbol, "error", err)
		}
	}
}

func (s *Server) dashboard(holdings []models.Holding, snap market.Snapshot, now time.Time) models.DashboardSnapshot {
	listed := market.Symbols(s.watch, portfolio.Symbols(holdings))
	dash := models.DashboardSnapshot{
		Portfolio:     portfolio.Compute(holdings, snap.Quotes),
		Quotes:        market.List(market.Only(snap.Quotes, listed)),
		Indices:       snap.Indices,
		UsingMockData: snap.UsingMockData,
		UpdatedAt:     now.UTC(),
	}
	if dash.Indices == nil {
		dash.Indices = []models.MarketIndex{}
	}
	if snap.Err != nil {
		dash.Error = sourceMessage(snap.Err)
	}
	return dash
}

// View builds a dashboard from the stored holdings and the last fetched
// quotes. Unlike Refresh it never evaluates alerts.
func (s *Server) View(ctx context.Context) (models.DashboardSnapshot, error) {
	holdings, err := s.repo.Holdings(ctx)
	if err != nil {
		return models.DashboardSnapshot{}, err
	}
	s.mu.RLock()
	snap := s.lastFetch
	s.mu.RUnlock()
	return s.dashboard(holdings, snap, s.now()), nil
}

// Latest returns the last applied dashboard.
func (s *Server) Latest() models.DashboardSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// quote returns the last fetched quote for symbol.
func (s *Server) quote(symbol string) (models.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.lastFetch.Quotes[symbol]
	return q, ok && q.Price > 0
}

// refreshInBackground pulls quotes for a symbol the last fetch did not cover.
func (s *Server) refreshInBackground(symbol string) {
	if _, ok := s.quote(symbol); ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Refresh(ctx, triggerMutation); err != nil && !errors.Is(err, ErrStaleRefresh) {
			logger.Get().Warnw("background refresh failed", "symbol", symbol, "error", err)
		}
	}()
}

func sourceMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return apperrors.ErrQuoteSource.Message
}
