package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"signalist/internal/alerts"
	"signalist/internal/logger"
	"signalist/internal/market"
	"signalist/internal/metrics"
	"signalist/internal/models"
	"signalist/internal/notification"
	"signalist/internal/portfolio"
	"signalist/internal/store"
)

var fixedNow = time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC)

type fakeProvider struct {
	mu         sync.Mutex
	configured bool
	prices     map[string]float64
	gate       chan struct{}
	entered    chan struct{}
}

func (f *fakeProvider) Name() string     { return "fake" }
func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) FetchQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.gate = nil
	quotes := make([]models.Quote, 0, len(symbols))
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			quotes = append(quotes, models.Quote{Symbol: s, Price: p, Change: 2})
		}
	}
	f.mu.Unlock()

	if gate != nil {
		close(entered)
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return quotes, nil
}

// holdBack makes the next fetch block until the returned func is called.
func (f *fakeProvider) holdBack() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{})
	gate := f.gate
	return f.entered, func() { close(gate) }
}

func (f *fakeProvider) setPrice(symbol string, price float64) {
	f.mu.Lock()
	f.prices[symbol] = price
	f.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (r *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type testEnv struct {
	srv      *Server
	repo     *store.Repository
	provider *fakeProvider
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	repo := store.NewRepository(store.NewMemoryPort())
	require.NoError(t, repo.SaveHoldings(context.Background(), []models.Holding{
		{Symbol: "AAPL", Name: "Apple Inc.", Shares: 10, AvgCost: 150, PurchaseDate: "2024-01-15"},
	}))

	mock, err := market.NewMockProvider()
	require.NoError(t, err)
	provider := &fakeProvider{configured: true, prices: map[string]float64{"AAPL": 180, "SPY": 450}}

	reg := prometheus.NewRegistry()
	env := &testEnv{
		repo:     repo,
		provider: provider,
		notifier: &recordingNotifier{},
		metrics:  metrics.New(reg),
		registry: reg,
	}
	env.srv = NewServer(Deps{
		Repo:         repo,
		Source:       market.NewSource(provider, mock, nil),
		Notifier:     env.notifier,
		Metrics:      env.metrics,
		Gatherer:     reg,
		WatchSymbols: []string{"AAPL"},
	})
	env.srv.now = func() time.Time { return fixedNow }
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v), resp.Body.String())
	return v
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}](t, resp)
	return body.Error.Code
}

func TestRefreshValuesPortfolioAndFiresAlerts(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	alert, err := alerts.Create(models.AlertInput{Symbol: "AAPL", Type: models.AlertAbove, TargetPrice: 175}, fixedNow)
	require.NoError(t, err)
	require.NoError(t, env.repo.SaveAlerts(ctx, []models.Alert{alert}))

	dash, err := env.srv.Refresh(ctx, triggerManual)
	require.NoError(t, err)

	assert.InDelta(t, 1800, dash.Portfolio.TotalValue, 1e-9)
	assert.InDelta(t, 300, dash.Portfolio.TotalGain, 1e-9)
	assert.InDelta(t, 20, dash.Portfolio.DayChange, 1e-9)
	assert.False(t, dash.UsingMockData)
	assert.Empty(t, dash.Error)
	require.Len(t, dash.AlertsFired, 1)
	assert.Equal(t, alert.ID, dash.AlertsFired[0].ID)

	stored, err := env.repo.Alerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts.Triggered(stored), 1)
	assert.Equal(t, fixedNow, *stored[0].TriggeredAt)

	assert.Equal(t, 1, env.notifier.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.AlertsTriggered))
	assert.Equal(t, 1800.0, testutil.ToFloat64(env.metrics.PortfolioValue))

	dash, err = env.srv.Refresh(ctx, triggerPoll)
	require.NoError(t, err)
	assert.Empty(t, dash.AlertsFired, "a triggered alert fires once")
	assert.Equal(t, 1, env.notifier.count())
}

func TestRefreshDiscardsStaleResult(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	entered, release := env.provider.holdBack()

	type result struct {
		dash models.DashboardSnapshot
		err  error
	}
	slow := make(chan result, 1)
	go func() {
		dash, err := env.srv.Refresh(ctx, triggerPoll)
		slow <- result{dash, err}
	}()
	<-entered

	env.provider.setPrice("AAPL", 200)
	fresh, err := env.srv.Refresh(ctx, triggerManual)
	require.NoError(t, err)
	assert.InDelta(t, 2000, fresh.Portfolio.TotalValue, 1e-9)

	release()
	stale := <-slow
	assert.ErrorIs(t, stale.err, ErrStaleRefresh)

	assert.InDelta(t, 2000, env.srv.Latest().Portfolio.TotalValue, 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.StaleDiscarded))
}

func TestRefreshCancelledAppliesNothing(t *testing.T) {
	env := setupServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.srv.Refresh(ctx, triggerManual)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, env.srv.Latest().UpdatedAt.IsZero())
}

func TestRefreshUsesMockWhenUnconfigured(t *testing.T) {
	env := setupServer(t)
	env.provider.configured = false

	dash, err := env.srv.Refresh(context.Background(), triggerPoll)
	require.NoError(t, err)

	assert.True(t, dash.UsingMockData)
	assert.InDelta(t, 1787.2, dash.Portfolio.TotalValue, 1e-9)
	assert.Len(t, dash.Indices, 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.UsingMockData))
}

func TestHoldingHandlers(t *testing.T) {
	env := setupServer(t)
	_, err := env.srv.Refresh(context.Background(), triggerPoll)
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/api/holdings", `{"symbol":"aapl","shares":10,"avgCost":170}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	merged := decode[models.Holding](t, resp)
	assert.Equal(t, "AAPL", merged.Symbol)
	assert.InDelta(t, 20, merged.Shares, 1e-9)
	assert.InDelta(t, 160, merged.AvgCost, 1e-9)

	resp = env.do(t, http.MethodGet, "/api/holdings", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]models.Holding](t, resp), 1)

	resp = env.do(t, http.MethodPatch, "/api/holdings/aapl", `{"shares":4}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	updated := decode[[]models.Holding](t, resp)
	require.Len(t, updated, 1)
	assert.Equal(t, 4.0, updated[0].Shares)
	assert.InDelta(t, 720, env.srv.Latest().Portfolio.TotalValue, 1e-9)

	resp = env.do(t, http.MethodDelete, "/api/holdings/AAPL", "")
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = env.do(t, http.MethodDelete, "/api/holdings/AAPL", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, resp))

	stored, err := env.repo.Holdings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored, "an emptied portfolio is not reseeded")
}

func TestHoldingHandlersRejectInvalidInput(t *testing.T) {
	env := setupServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"empty symbol", http.MethodPost, "/api/holdings", `{"symbol":" ","shares":1,"avgCost":1}`, http.StatusBadRequest, "INVALID_SYMBOL"},
		{"zero shares", http.MethodPost, "/api/holdings", `{"symbol":"AAPL","shares":0,"avgCost":1}`, http.StatusBadRequest, "INVALID_SHARES"},
		{"malformed body", http.MethodPost, "/api/holdings", `{"symbol":`, http.StatusBadRequest, "INVALID_INPUT"},
		{"missing shares", http.MethodPatch, "/api/holdings/AAPL", `{}`, http.StatusBadRequest, "INVALID_SHARES"},
		{"unknown holding", http.MethodPatch, "/api/holdings/ZZZ", `{"shares":2}`, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.Code, resp.Body.String())
			assert.Equal(t, tt.code, errorCode(t, resp))
		})
	}
}

func TestHoldingWithSlashInSymbol(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodPost, "/api/holdings", `{"symbol":"brk/b","shares":2,"avgCost":400}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, "BRK/B", decode[models.Holding](t, resp).Symbol)

	resp = env.do(t, http.MethodPatch, "/api/holdings/BRK%2FB", `{"shares":3}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	h, ok := portfolio.Find(decode[[]models.Holding](t, resp), "BRK/B")
	require.True(t, ok)
	assert.Equal(t, 3.0, h.Shares)

	resp = env.do(t, http.MethodDelete, "/api/holdings/brk%2Fb", "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
}

func TestUpdateSharesToZeroRemoves(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodPatch, "/api/holdings/AAPL", `{"shares":0}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[[]models.Holding](t, resp))
}

func TestAlertHandlers(t *testing.T) {
	env := setupServer(t)
	_, err := env.srv.Refresh(context.Background(), triggerPoll)
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/api/alerts", `{"symbol":"AAPL","type":"above","targetPrice":170}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "ALERT_DIRECTION", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, "/api/alerts", `{"symbol":"aapl","type":"above","targetPrice":190}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	created := decode[models.Alert](t, resp)
	assert.Equal(t, 180.0, created.CurrentPrice, "filled from the latest quote")
	assert.True(t, created.IsActive)

	resp = env.do(t, http.MethodGet, "/api/alerts?symbol=aapl", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]models.Alert](t, resp), 1)

	resp = env.do(t, http.MethodGet, "/api/alerts?symbol=MSFT", "")
	assert.Empty(t, decode[[]models.Alert](t, resp))

	resp = env.do(t, http.MethodPost, "/api/alerts/"+created.ID+"/toggle", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, decode[models.Alert](t, resp).IsActive)

	resp = env.do(t, http.MethodGet, "/api/alerts/active", "")
	assert.Empty(t, decode[[]models.Alert](t, resp))
	resp = env.do(t, http.MethodGet, "/api/alerts/triggered", "")
	assert.Empty(t, decode[[]models.Alert](t, resp), "paused is not triggered")

	resp = env.do(t, http.MethodPost, "/api/alerts/nope/toggle", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "ALERT_NOT_FOUND", errorCode(t, resp))

	resp = env.do(t, http.MethodDelete, "/api/alerts/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	resp = env.do(t, http.MethodDelete, "/api/alerts/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCreateAlertRejectsInvalidInput(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodPost, "/api/alerts", `{"symbol":"AAPL","type":"above","targetPrice":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "INVALID_TARGET_PRICE", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, "/api/alerts", `{"symbol":"AAPL","type":"sideways","targetPrice":5}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "INVALID_ALERT_TYPE", errorCode(t, resp))
}

func TestToggleReactivatedAlertFiresOnRecompute(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()
	_, err := env.srv.Refresh(ctx, triggerPoll)
	require.NoError(t, err)

	alert, err := alerts.Create(models.AlertInput{Symbol: "AAPL", Type: models.AlertBelow, TargetPrice: 190}, fixedNow)
	require.NoError(t, err)
	alert.IsActive = false
	require.NoError(t, env.repo.SaveAlerts(ctx, []models.Alert{alert}))

	resp := env.do(t, http.MethodPost, "/api/alerts/"+alert.ID+"/toggle", "")
	require.Equal(t, http.StatusOK, resp.Code)

	stored, err := env.repo.Alerts(ctx)
	require.NoError(t, err)
	assert.Len(t, alerts.Triggered(stored), 1)
	assert.Equal(t, 1, env.notifier.count())
}

func TestReadHandlers(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())

	resp = env.do(t, http.MethodGet, "/api/portfolio", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.InDelta(t, 1500, decode[models.DashboardSnapshot](t, resp).Portfolio.TotalValue, 1e-9, "valued at cost before any quotes")

	resp = env.do(t, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, resp.Code)
	dash := decode[models.DashboardSnapshot](t, resp)
	assert.InDelta(t, 1800, dash.Portfolio.TotalValue, 1e-9)
	require.Len(t, dash.Quotes, 1)
	assert.Equal(t, "AAPL", dash.Quotes[0].Symbol)

	resp = env.do(t, http.MethodGet, "/api/quotes", "")
	require.Equal(t, http.StatusOK, resp.Code)
	quotes := decode[quotesResponse](t, resp)
	assert.Len(t, quotes.Quotes, 2)
	require.Len(t, quotes.Indices, 1)
	assert.Equal(t, "SPX", quotes.Indices[0].Symbol)

	resp = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `signalist_refresh_total{trigger="manual"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	env := setupServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/holdings/AAPL", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	resp := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(resp, req)

	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketReceivesSnapshots(t *testing.T) {
	env := setupServer(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var initial models.DashboardSnapshot
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&initial))
	assert.InDelta(t, 1500, initial.Portfolio.TotalValue, 1e-9)

	_, err = env.srv.Refresh(context.Background(), triggerPoll)
	require.NoError(t, err)

	var pushed models.DashboardSnapshot
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.InDelta(t, 1800, pushed.Portfolio.TotalValue, 1e-9)
}

func TestStartPollingStopsOnCancel(t *testing.T) {
	env := setupServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.srv.StartPolling(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return !env.srv.Latest().UpdatedAt.IsZero()
	}, 2*time.Second, 10*time.Millisecond, "first refresh runs immediately")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("polling did not stop")
	}
}

func TestCreateAlertAcceptsTargetPriceText(t *testing.T) {
	env := setupServer(t)
	_, err := env.srv.Refresh(context.Background(), triggerPoll)
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/api/alerts", `{"symbol":"AAPL","type":"above","targetPrice":" 190.5 "}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, 190.5, decode[models.Alert](t, resp).TargetPrice)

	for _, body := range []string{
		`{"symbol":"AAPL","type":"above","targetPrice":"abc"}`,
		`{"symbol":"AAPL","type":"above","targetPrice":"0"}`,
		`{"symbol":"AAPL","type":"above","targetPrice":true}`,
		`{"symbol":"AAPL","type":"above"}`,
	} {
		resp = env.do(t, http.MethodPost, "/api/alerts", body)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
		assert.Equal(t, "INVALID_TARGET_PRICE", errorCode(t, resp), body)
	}
}

func TestStockDetail(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodGet, "/api/stocks/aapl", "")
	require.Equal(t, http.StatusOK, resp.Code)
	live := decode[stockResponse](t, resp)
	require.NotNil(t, live.Quote)
	assert.Equal(t, 180.0, live.Quote.Price)
	assert.False(t, live.UsingMockData)
	assert.Empty(t, live.Error)

	resp = env.do(t, http.MethodGet, "/api/stocks/MSFT", "")
	require.Equal(t, http.StatusOK, resp.Code)
	fallback := decode[stockResponse](t, resp)
	require.NotNil(t, fallback.Quote)
	assert.Equal(t, 378.91, fallback.Quote.Price)
	assert.True(t, fallback.UsingMockData)
	assert.Equal(t, "No data available for symbol", fallback.Error)

	env.provider.configured = false
	resp = env.do(t, http.MethodGet, "/api/stocks/ZZZZ", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "STOCK_NOT_FOUND", errorCode(t, resp))
}

func TestMovers(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodGet, "/api/movers", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"gainers":[],"losers":[],"isUsingMockData":false}`, resp.Body.String())

	env.provider.configured = false
	_, err := env.srv.Refresh(context.Background(), triggerPoll)
	require.NoError(t, err)

	resp = env.do(t, http.MethodGet, "/api/movers", "")
	require.Equal(t, http.StatusOK, resp.Code)
	movers := decode[moversResponse](t, resp)
	require.Len(t, movers.Gainers, 1)
	assert.Equal(t, "AAPL", movers.Gainers[0].Symbol)
	assert.Empty(t, movers.Losers)
	assert.True(t, movers.UsingMockData)
}

func TestSettingsHandlers(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, models.DefaultSettings(), decode[models.Settings](t, resp))

	resp = env.do(t, http.MethodPut, "/api/settings", `{"appearance":{"compactView":true}}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	got := decode[models.Settings](t, resp)
	assert.True(t, got.Appearance.CompactView)
	assert.True(t, got.Appearance.DarkMode)

	for _, body := range []string{`not json`, `{"notifications":"off"}`} {
		resp = env.do(t, http.MethodPut, "/api/settings", body)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
		assert.Equal(t, "INVALID_INPUT", errorCode(t, resp), body)
	}

	stored, err := env.repo.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got, stored)
}

func TestPriceAlertNotificationsCanBeDisabled(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	resp := env.do(t, http.MethodPut, "/api/settings", `{"notifications":{"priceAlerts":false}}`)
	require.Equal(t, http.StatusOK, resp.Code)

	alert, err := alerts.Create(models.AlertInput{Symbol: "AAPL", Type: models.AlertAbove, TargetPrice: 175}, fixedNow)
	require.NoError(t, err)
	require.NoError(t, env.repo.SaveAlerts(ctx, []models.Alert{alert}))

	dash, err := env.srv.Refresh(ctx, triggerManual)
	require.NoError(t, err)
	assert.Len(t, dash.AlertsFired, 1, "the alert still fires")
	assert.Equal(t, 0, env.notifier.count())
}

// failOnKey fails Load or Save for one key and passes the rest through.
type failOnKey struct {
	store.Port
	key     string
	loadErr error
	saveErr error
}

func (f failOnKey) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if key == f.key && f.loadErr != nil {
		return nil, false, f.loadErr
	}
	return f.Port.Load(ctx, key)
}

func (f failOnKey) Save(ctx context.Context, key string, data []byte) error {
	if key == f.key && f.saveErr != nil {
		return f.saveErr
	}
	return f.Port.Save(ctx, key, data)
}

func TestApplyLogsAlertStoreFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk unavailable")

	alert, err := alerts.Create(models.AlertInput{Symbol: "AAPL", Type: models.AlertAbove, TargetPrice: 175}, fixedNow)
	require.NoError(t, err)

	tests := []struct {
		name    string
		port    func(inner store.Port) store.Port
		wantLog string
	}{
		{"load", func(inner store.Port) store.Port {
			return failOnKey{Port: inner, key: store.AlertsKey, loadErr: boom}
		}, "failed to load alerts for evaluation"},
		{"save", func(inner store.Port) store.Port {
			return failOnKey{Port: inner, key: store.AlertsKey, saveErr: boom}
		}, "failed to persist triggered alerts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := store.NewMemoryPort()
			require.NoError(t, store.NewRepository(inner).SaveAlerts(ctx, []models.Alert{alert}))

			notifier := &recordingNotifier{}
			srv := NewServer(Deps{Repo: store.NewRepository(tt.port(inner)), Notifier: notifier, Metrics: metrics.New(nil)})
			srv.now = func() time.Time { return fixedNow }
			srv.lastFetch = market.Snapshot{Quotes: models.Quotes{"AAPL": {Symbol: "AAPL", Price: 180}}}

			core, logs := observer.New(zap.ErrorLevel)
			defer logger.Set(zap.New(core))()

			dash, err := srv.recompute(ctx)
			require.NoError(t, err)
			assert.Empty(t, dash.AlertsFired)
			assert.Equal(t, 0, notifier.count())

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantLog, entries[0].Message)
			assert.Equal(t, boom.Error(), entries[0].ContextMap()["error"])
		})
	}
}
