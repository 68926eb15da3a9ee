package market

import (
	"sort"

	"signalist/internal/models"
)

// Movers returns up to n gainers, best first, and up to n losers, worst
// first. Flat quotes are in neither list.
func Movers(quotes []models.Quote, n int) (gainers, losers []models.Quote) {
	n = max(n, 0)
	gainers = make([]models.Quote, 0, n)
	losers = make([]models.Quote, 0, n)
	for _, q := range quotes {
		switch {
		case q.Change > 0:
			gainers = append(gainers, q)
		case q.Change < 0:
			losers = append(losers, q)
		}
	}
	sort.SliceStable(gainers, func(i, j int) bool { return gainers[i].ChangePercent > gainers[j].ChangePercent })
	sort.SliceStable(losers, func(i, j int) bool { return losers[i].ChangePercent < losers[j].ChangePercent })
	if len(gainers) > n {
		gainers = gainers[:n]
	}
	if len(losers) > n {
		losers = losers[:n]
	}
	return gainers, losers
}
