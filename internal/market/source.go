package market

import (
	"context"
	"time"

	apperrors "signalist/internal/errors"
	"signalist/internal/logger"
	"signalist/internal/models"
)

// Snapshot is one pull from the quote source. Err carries the live provider's
// failure when the quotes came from the cache or the mock dataset instead.
type Snapshot struct {
	Quotes        models.Quotes
	Indices       []models.MarketIndex
	UsingMockData bool
	Err           error
	FetchedAt     time.Time
}

// Source pulls quotes from the live provider and degrades to the last known
// quotes, then to the mock dataset.
type Source struct {
	live  Provider
	mock  *MockProvider
	cache QuoteCache
	now   func() time.Time
}

func NewSource(live Provider, mock *MockProvider, cache QuoteCache) *Source {
	if cache == nil {
		cache = NewMemoryQuoteCache()
	}
	return &Source{live: live, mock: mock, cache: cache, now: time.Now}
}

// Fetch returns a snapshot for symbols. The only error it returns is the
// context's, in which case the caller must not apply anything.
func (s *Source) Fetch(ctx context.Context, symbols []string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if s.live == nil || !s.live.Configured() {
		return s.mockSnapshot(ctx, nil), nil
	}

	quotes, err := s.live.FetchQuotes(ctx, Symbols(symbols, IndexETFs))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Snapshot{}, ctxErr
	}

	last, haveLast, cacheErr := s.cache.Load(ctx)
	if cacheErr != nil {
		logger.Get().Warnw("quote cache unavailable", "error", cacheErr)
	}
	fresh := Index(quotes)

	if err != nil && len(fresh) == 0 {
		logger.Get().Warnw("live quotes unavailable, falling back", "provider", s.live.Name(), "error", err)
		if haveLast {
			return Snapshot{
				Quotes:    last,
				Indices:   Indices(last),
				Err:       err,
				FetchedAt: s.now().UTC(),
			}, nil
		}
		return s.mockSnapshot(ctx, err), nil
	}

	merged := Merge(last, fresh)
	if storeErr := s.cache.Store(ctx, merged); storeErr != nil {
		logger.Get().Warnw("quote cache store failed", "error", storeErr)
	}
	return Snapshot{
		Quotes:    merged,
		Indices:   Indices(merged),
		Err:       err,
		FetchedAt: s.now().UTC(),
	}, nil
}

func (s *Source) mockSnapshot(ctx context.Context, cause error) Snapshot {
	snap := Snapshot{
		Quotes:        models.Quotes{},
		UsingMockData: true,
		Err:           cause,
		FetchedAt:     s.now().UTC(),
	}
	if s.mock == nil {
		return snap
	}
	quotes, _ := s.mock.FetchQuotes(ctx, nil)
	snap.Quotes = Index(quotes)
	snap.Indices = s.mock.Indices()
	return snap
}

// Detail is a single-symbol lookup. Quote is nil when neither the live
// provider nor the mock dataset knows the symbol.
type Detail struct {
	Quote         *models.Quote
	UsingMockData bool
	Err           error
}

// Detail fetches one symbol without touching the shared snapshot. Without a
// configured provider an unknown symbol is ErrStockNotFound; a live failure
// falls back to the mock entry, if any, and is reported in Detail.Err.
func (s *Source) Detail(ctx context.Context, symbol string) (Detail, error) {
	symbol = normalize(symbol)
	if err := ctx.Err(); err != nil {
		return Detail{}, err
	}
	if s.live == nil || !s.live.Configured() {
		q, ok := s.mockQuote(symbol)
		if !ok {
			return Detail{}, apperrors.ErrStockNotFound
		}
		return Detail{Quote: &q, UsingMockData: true}, nil
	}

	quotes, err := s.live.FetchQuotes(ctx, []string{symbol})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Detail{}, ctxErr
	}
	if q, ok := Index(quotes)[symbol]; ok {
		return Detail{Quote: &q}, nil
	}
	if err == nil {
		err = apperrors.ErrNoQuoteData
	}
	logger.Get().Warnw("live quote unavailable, falling back to mock", "symbol", symbol, "error", err)

	detail := Detail{UsingMockData: true, Err: err}
	if q, ok := s.mockQuote(symbol); ok {
		detail.Quote = &q
	}
	return detail, nil
}

func (s *Source) mockQuote(symbol string) (models.Quote, bool) {
	if s.mock == nil {
		return models.Quote{}, false
	}
	return s.mock.Quote(symbol)
}
