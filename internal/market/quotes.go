package market

import (
	"sort"
	"strings"

	"signalist/internal/models"
)

// Index keys a provider's quote list by upper-case symbol. Quotes without a
// positive price are dropped; a later duplicate wins.
func Index(quotes []models.Quote) models.Quotes {
	out := make(models.Quotes, len(quotes))
	for _, q := range quotes {
		symbol := normalize(q.Symbol)
		if symbol == "" || !(q.Price > 0) {
			continue
		}
		q.Symbol = symbol
		out[symbol] = q
	}
	return out
}

// Merge lays a fresh, possibly partial, snapshot over the last known one.
// Neither argument is modified.
func Merge(last, fresh models.Quotes) models.Quotes {
	out := make(models.Quotes, len(last)+len(fresh))
	for k, v := range last {
		out[k] = v
	}
	for k, v := range fresh {
		out[k] = v
	}
	return out
}

// Only restricts quotes to symbols.
func Only(quotes models.Quotes, symbols []string) models.Quotes {
	out := make(models.Quotes, len(symbols))
	for _, s := range symbols {
		if q, ok := quotes[normalize(s)]; ok {
			out[q.Symbol] = q
		}
	}
	return out
}

// List returns quotes ordered by symbol.
func List(quotes models.Quotes) []models.Quote {
	out := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols merges symbol lists into one upper-case, de-duplicated list,
// keeping first-seen order.
func Symbols(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, list := range lists {
		for _, s := range list {
			s = normalize(s)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
