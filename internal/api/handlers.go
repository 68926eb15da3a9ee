package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"signalist/internal/alerts"
	apperrors "signalist/internal/errors"
	"signalist/internal/logger"
	"signalist/internal/market"
	"signalist/internal/models"
	"signalist/internal/portfolio"
)

// pathVar returns a decoded route variable. The router matches on the
// encoded path, so an escaped slash stays inside one segment.
func pathVar(r *http.Request, name string) string {
	raw := mux.Vars(r)[name]
	v, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.repo.Holdings(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

func (s *Server) handleAddHolding(w http.ResponseWriter, r *http.Request) {
	var in models.HoldingInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithError(w, r, err)
		return
	}
	if err := portfolio.ValidateInput(in); err != nil {
		respondWithError(w, r, err)
		return
	}

	next, err := s.repo.UpdateHoldings(r.Context(), func(current []models.Holding) ([]models.Holding, error) {
		return portfolio.Add(current, in, s.now()), nil
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	symbol := portfolio.NormalizeSymbol(in.Symbol)
	s.afterMutation(r)
	s.refreshInBackground(symbol)

	created, _ := portfolio.Find(next, symbol)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateShares(w http.ResponseWriter, r *http.Request) {
	symbol := portfolio.NormalizeSymbol(pathVar(r, "symbol"))

	var req struct {
		Shares *float64 `json:"shares"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}
	if req.Shares == nil || math.IsNaN(*req.Shares) || math.IsInf(*req.Shares, 0) {
		respondWithError(w, r, apperrors.ErrInvalidShares)
		return
	}

	next, err := s.repo.UpdateHoldings(r.Context(), func(current []models.Holding) ([]models.Holding, error) {
		if _, ok := portfolio.Find(current, symbol); !ok {
			return nil, apperrors.WithMessage(apperrors.ErrNotFound, "Holding not found")
		}
		return portfolio.UpdateShares(current, symbol, *req.Shares), nil
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	s.afterMutation(r)
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleRemoveHolding(w http.ResponseWriter, r *http.Request) {
	symbol := portfolio.NormalizeSymbol(pathVar(r, "symbol"))

	_, err := s.repo.UpdateHoldings(r.Context(), func(current []models.Holding) ([]models.Holding, error) {
		if _, ok := portfolio.Find(current, symbol); !ok {
			return nil, apperrors.WithMessage(apperrors.ErrNotFound, "Holding not found")
		}
		return portfolio.Remove(current, symbol), nil
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	s.afterMutation(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	s.listAlerts(w, r, func(a []models.Alert) []models.Alert {
		if symbol := strings.TrimSpace(r.URL.Query().Get("symbol")); symbol != "" {
			return alerts.ForSymbol(a, symbol)
		}
		return a
	})
}

func (s *Server) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	s.listAlerts(w, r, alerts.Active)
}

func (s *Server) handleTriggeredAlerts(w http.ResponseWriter, r *http.Request) {
	s.listAlerts(w, r, alerts.Triggered)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request, view func([]models.Alert) []models.Alert) {
	all, err := s.repo.Alerts(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(all))
}

// createAlertRequest accepts targetPrice as a JSON number or as the string a
// form field produces.
type createAlertRequest struct {
	models.AlertInput
	TargetPrice json.RawMessage `json:"targetPrice"`
}

func targetPrice(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, apperrors.ErrInvalidTargetPrice
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, apperrors.Wrap(apperrors.ErrInvalidTargetPrice, err)
		}
		return alerts.ParseTargetPrice(text)
	}
	var price float64
	if err := json.Unmarshal(raw, &price); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInvalidTargetPrice, err)
	}
	return price, nil
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}
	price, err := targetPrice(req.TargetPrice)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	in := req.AlertInput
	in.TargetPrice = price

	symbol := portfolio.NormalizeSymbol(in.Symbol)
	if q, ok := s.quote(symbol); ok {
		if in.CurrentPrice <= 0 {
			in.CurrentPrice = q.Price
		}
		if strings.TrimSpace(in.Name) == "" {
			in.Name = q.Name
		}
	}

	alert, err := alerts.Create(in, s.now())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	_, err = s.repo.UpdateAlerts(r.Context(), func(current []models.Alert) ([]models.Alert, error) {
		return append(current, alert), nil
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	s.refreshInBackground(alert.Symbol)
	writeJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleToggleAlert(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	next, err := s.repo.UpdateAlerts(r.Context(), func(current []models.Alert) ([]models.Alert, error) {
		if _, ok := alerts.Find(current, id); !ok {
			return nil, apperrors.ErrAlertNotFound
		}
		return alerts.Toggle(current, id), nil
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	s.afterMutation(r)
	toggled, _ := alerts.Find(next, id)
	writeJSON(w, http.StatusOK, toggled)
}

func (s *Server) handleRemoveAlert(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	_, err := s.repo.UpdateAlerts(r.Context(), func(current []models.Alert) ([]models.Alert, error) {
		if _, ok := alerts.Find(current, id); !ok {
			return nil, apperrors.ErrAlertNotFound
		}
		return alerts.Remove(current, id), nil
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	dash, err := s.View(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

type quotesResponse struct {
	Quotes        []models.Quote       `json:"quotes"`
	Indices       []models.MarketIndex `json:"indices"`
	UsingMockData bool                 `json:"isUsingMockData"`
	Error         string               `json:"error,omitempty"`
}

func (s *Server) handleQuotes(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	snap := s.lastFetch
	s.mu.RUnlock()

	resp := quotesResponse{
		Quotes:        market.List(snap.Quotes),
		Indices:       snap.Indices,
		UsingMockData: snap.UsingMockData,
	}
	if resp.Indices == nil {
		resp.Indices = []models.MarketIndex{}
	}
	if snap.Err != nil {
		resp.Error = sourceMessage(snap.Err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	dash, err := s.Refresh(r.Context(), triggerManual)
	if err != nil && !errors.Is(err, ErrStaleRefresh) {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

type stockResponse struct {
	Quote         *models.Quote `json:"quote"`
	UsingMockData bool          `json:"isUsingMockData"`
	Error         string        `json:"error,omitempty"`
}

func (s *Server) handleStockDetail(w http.ResponseWriter, r *http.Request) {
	symbol := portfolio.NormalizeSymbol(pathVar(r, "symbol"))

	detail, err := s.source.Detail(r.Context(), symbol)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if detail.Err != nil {
		s.metrics.QuoteFetchErrors.Inc()
	}

	resp := stockResponse{Quote: detail.Quote, UsingMockData: detail.UsingMockData}
	if detail.Err != nil {
		resp.Error = sourceMessage(detail.Err)
	}
	writeJSON(w, http.StatusOK, resp)
}

const moversPerSide = 3

type moversResponse struct {
	Gainers       []models.Quote `json:"gainers"`
	Losers        []models.Quote `json:"losers"`
	UsingMockData bool           `json:"isUsingMockData"`
}

func (s *Server) handleMovers(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	snap := s.lastFetch
	s.mu.RUnlock()

	gainers, losers := market.Movers(market.List(market.Only(snap.Quotes, s.watch)), moversPerSide)
	writeJSON(w, http.StatusOK, moversResponse{Gainers: gainers, Losers: losers, UsingMockData: snap.UsingMockData})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.repo.Settings(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleUpdateSettings merges a partial settings document over the stored one.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, r, apperrors.Wrap(apperrors.ErrInvalidInput, err))
		return
	}
	var check models.Settings
	if err := json.Unmarshal(body, &check); err != nil {
		respondWithError(w, r, apperrors.Wrap(apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid request body"), err))
		return
	}

	settings, err := s.repo.MergeSettings(r.Context(), body)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := s.hub.AddClient(conn)
	s.metrics.WSClients.Set(float64(s.hub.Count()))

	if dash, err := s.View(r.Context()); err == nil {
		_ = client.WriteJSON(dash)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.RemoveClient(client)
			s.metrics.WSClients.Set(float64(s.hub.Count()))
			return
		}
	}
}

// afterMutation re-values the dashboard once a change has been persisted.
func (s *Server) afterMutation(r *http.Request) {
	if _, err := s.recompute(r.Context()); err != nil && !errors.Is(err, ErrStaleRefresh) {
		logger.Get().Warnw("recompute after mutation failed", "path", r.URL.Path, "error", err)
	}
}
