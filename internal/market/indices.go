package market

import "signalist/internal/models"

// IndexETFs are the ETFs polled to approximate the headline indices.
var IndexETFs = []string{"SPY", "QQQ", "DIA"}

type etfIndex struct {
	name   string
	symbol string
	scale  float64
}

// Rough ETF-to-index multipliers.
var etfIndices = map[string]etfIndex{
	"SPY": {name: "S&P 500", symbol: "SPX", scale: 10},
	"QQQ": {name: "NASDAQ", symbol: "NDX", scale: 45},
	"DIA": {name: "DOW 30", symbol: "DJI", scale: 100},
}

// Indices derives index levels from the ETF quotes present in quotes.
func Indices(quotes models.Quotes) []models.MarketIndex {
	out := make([]models.MarketIndex, 0, len(IndexETFs))
	for _, etf := range IndexETFs {
		q, ok := quotes[etf]
		if !ok {
			continue
		}
		info := etfIndices[etf]
		out = append(out, models.MarketIndex{
			Name:          info.name,
			Symbol:        info.symbol,
			Value:         q.Price * info.scale,
			Change:        q.Change,
			ChangePercent: q.ChangePercent,
		})
	}
	return out
}
