package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	apperrors "signalist/internal/errors"
	"signalist/internal/logger"
	"signalist/internal/models"
)

const DefaultFinnhubURL = "https://finnhub.io/api/v1"

// Provider fetches quotes for a set of symbols. A provider returns every
// quote it could get; per-symbol failures are not an error on their own.
type Provider interface {
	Name() string
	Configured() bool
	FetchQuotes(ctx context.Context, symbols []string) ([]models.Quote, error)
}

// Finnhub quote endpoints do not return a company name.
var stockNames = map[string]string{
	"AAPL":  "Apple Inc",
	"MSFT":  "Microsoft Corp",
	"GOOGL": "Alphabet Inc",
	"AMZN":  "Amazon.com Inc",
	"TSLA":  "Tesla Inc",
	"META":  "Meta Platforms Inc",
	"NVDA":  "NVIDIA Corp",
	"NFLX":  "Netflix Inc",
	"ORCL":  "Oracle Corp",
	"CRM":   "Salesforce Inc",
	"SPY":   "S&P 500 ETF",
	"QQQ":   "NASDAQ 100 ETF",
	"DIA":   "Dow Jones ETF",
}

type FinnhubProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewFinnhubProvider builds a client for the Finnhub REST API. rps bounds the
// request rate across all symbols; a non-positive rps disables the limit.
func NewFinnhubProvider(baseURL, apiKey string, rps float64, burst int) *FinnhubProvider {
	if baseURL == "" {
		baseURL = DefaultFinnhubURL
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &FinnhubProvider{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

func (p *FinnhubProvider) Name() string { return "Finnhub" }

func (p *FinnhubProvider) Configured() bool { return p.apiKey != "" }

type finnhubQuote struct {
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	DP float64 `json:"dp"`
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	O  float64 `json:"o"`
	PC float64 `json:"pc"`
	T  int64   `json:"t"`
}

// FetchQuotes requests symbols one by one. Symbols that fail are skipped; the
// call fails only when rate limited or when no symbol succeeded.
func (p *FinnhubProvider) FetchQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	if !p.Configured() {
		return nil, apperrors.ErrNotConfigured
	}

	out := make([]models.Quote, 0, len(symbols))
	var lastErr error
	for _, symbol := range symbols {
		q, err := p.fetchQuote(ctx, symbol)
		if err != nil {
			if errors.Is(err, apperrors.ErrRateLimited) || ctx.Err() != nil {
				return out, err
			}
			logger.Get().Debugw("quote fetch failed", "provider", p.Name(), "symbol", symbol, "error", err)
			lastErr = err
			continue
		}
		out = append(out, q)
	}

	if len(out) == 0 && lastErr != nil {
		return nil, apperrors.Wrap(apperrors.ErrQuoteSource, lastErr)
	}
	return out, nil
}

func (p *FinnhubProvider) fetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return models.Quote{}, fmt.Errorf("finnhub rate wait: %w", err)
	}

	values := url.Values{}
	values.Set("symbol", symbol)
	values.Set("token", p.apiKey)
	endpoint := p.baseURL + "/quote?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Quote{}, fmt.Errorf("create finnhub request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return models.Quote{}, fmt.Errorf("fetch finnhub quote %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return models.Quote{}, apperrors.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Quote{}, fmt.Errorf("finnhub status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload finnhubQuote
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.Quote{}, fmt.Errorf("decode finnhub quote %s: %w", symbol, err)
	}
	if payload.C == 0 && payload.PC == 0 {
		return models.Quote{}, apperrors.WithMessage(apperrors.ErrNoQuoteData, "No data available for symbol: "+symbol)
	}

	name := stockNames[symbol]
	if name == "" {
		name = symbol
	}
	return models.Quote{
		Symbol:        symbol,
		Name:          name,
		Price:         payload.C,
		Change:        payload.D,
		ChangePercent: payload.DP,
		High:          payload.H,
		Low:           payload.L,
		Open:          payload.O,
		PreviousClose: payload.PC,
		Timestamp:     payload.T * 1000,
	}, nil
}
