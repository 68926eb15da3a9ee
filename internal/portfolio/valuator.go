// Package portfolio values a set of holdings against live quotes and applies
// the add/remove/update mutations to a holdings list. Every function is pure:
// inputs are never modified and a fresh slice is returned.
package portfolio

import (
	"math"
	"strings"
	"time"

	apperrors "signalist/internal/errors"
	"signalist/internal/models"
	"signalist/internal/validator"
)

// DateLayout is the layout of Holding.PurchaseDate.
const DateLayout = "2006-01-02"

// DefaultHoldings is the demo seed used when no holdings were ever stored or
// the stored value cannot be decoded.
func DefaultHoldings() []models.Holding {
	return []models.Holding{
		{Symbol: "AAPL", Name: "Apple Inc", Shares: 10, AvgCost: 150.0, PurchaseDate: "2024-01-15"},
		{Symbol: "MSFT", Name: "Microsoft Corp", Shares: 5, AvgCost: 380.0, PurchaseDate: "2024-02-20"},
		{Symbol: "GOOGL", Name: "Alphabet Inc", Shares: 3, AvgCost: 140.0, PurchaseDate: "2024-03-10"},
		{Symbol: "TSLA", Name: "Tesla Inc", Shares: 8, AvgCost: 200.0, PurchaseDate: "2024-01-25"},
		{Symbol: "NVDA", Name: "NVIDIA Corp", Shares: 4, AvgCost: 450.0, PurchaseDate: "2024-04-05"},
	}
}

// Compute aggregates holdings and quotes into a Portfolio. A holding without
// a usable quote is valued at cost and contributes nothing to day change.
func Compute(holdings []models.Holding, quotes models.Quotes) models.Portfolio {
	out := models.Portfolio{
		Holdings: make([]models.EnrichedHolding, 0, len(holdings)),
	}

	for _, h := range holdings {
		costBasis := h.AvgCost * h.Shares
		currentPrice := h.AvgCost
		q, ok := quotes[h.Symbol]
		if ok && q.Price > 0 {
			currentPrice = q.Price
			out.DayChange += q.Change * h.Shares
		}
		currentValue := currentPrice * h.Shares
		gainLoss := currentValue - costBasis

		out.Holdings = append(out.Holdings, models.EnrichedHolding{
			Holding:         h,
			CurrentPrice:    currentPrice,
			CurrentValue:    currentValue,
			GainLoss:        gainLoss,
			GainLossPercent: percent(gainLoss, costBasis),
		})

		out.TotalValue += currentValue
		out.TotalCost += costBasis
	}

	out.TotalGain = out.TotalValue - out.TotalCost
	out.TotalGainPercent = percent(out.TotalGain, out.TotalCost)
	out.DayChangePercent = percent(out.DayChange, out.TotalValue-out.DayChange)
	return out
}

// Add buys into a position. An existing symbol is merged using the
// weighted-average cost; a new one is appended with today's purchase date.
func Add(existing []models.Holding, in models.HoldingInput, now time.Time) []models.Holding {
	symbol := NormalizeSymbol(in.Symbol)
	out := make([]models.Holding, 0, len(existing)+1)
	merged := false
	for _, h := range existing {
		if h.Symbol == symbol {
			shares := h.Shares + in.Shares
			h.AvgCost = (h.Shares*h.AvgCost + in.Shares*in.AvgCost) / shares
			h.Shares = shares
			merged = true
		}
		out = append(out, h)
	}
	if merged {
		return out
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = symbol
	}
	return append(out, models.Holding{
		Symbol:       symbol,
		Name:         name,
		Shares:       in.Shares,
		AvgCost:      in.AvgCost,
		PurchaseDate: now.Format(DateLayout),
	})
}

// Remove drops symbol from the list. Unknown symbols are a no-op.
func Remove(existing []models.Holding, symbol string) []models.Holding {
	out := make([]models.Holding, 0, len(existing))
	for _, h := range existing {
		if h.Symbol != symbol {
			out = append(out, h)
		}
	}
	return out
}

// UpdateShares replaces the share count of symbol, keeping its cost basis.
// A non-positive count removes the holding.
func UpdateShares(existing []models.Holding, symbol string, shares float64) []models.Holding {
	if shares <= 0 {
		return Remove(existing, symbol)
	}
	out := make([]models.Holding, len(existing))
	for i, h := range existing {
		if h.Symbol == symbol {
			h.Shares = shares
		}
		out[i] = h
	}
	return out
}

// Find returns the holding stored under symbol.
func Find(holdings []models.Holding, symbol string) (models.Holding, bool) {
	for _, h := range holdings {
		if h.Symbol == symbol {
			return h, true
		}
	}
	return models.Holding{}, false
}

// Symbols lists the holding symbols in order.
func Symbols(holdings []models.Holding) []string {
	out := make([]string, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, h.Symbol)
	}
	return out
}

// ValidateInput checks a buy request before it reaches Add.
func ValidateInput(in models.HoldingInput) error {
	if NormalizeSymbol(in.Symbol) == "" {
		return apperrors.ErrInvalidSymbol
	}
	if math.IsNaN(in.Shares) || math.IsInf(in.Shares, 0) || in.Shares <= 0 {
		return apperrors.ErrInvalidShares
	}
	if math.IsNaN(in.AvgCost) || math.IsInf(in.AvgCost, 0) {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "avgCost must be a finite number")
	}
	return validator.Struct(in)
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func percent(delta, base float64) float64 {
	if base == 0 {
		return 0
	}
	p := delta / base * 100
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return p
}
