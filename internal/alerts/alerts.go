// Package alerts holds the price alert rules: creation with boundary
// validation, toggling, removal, querying, and evaluation against live quotes.
//
// An alert is in exactly one state at a time. Active alerts have IsActive set.
// Paused and triggered alerts both have IsActive cleared and are told apart by
// TriggeredAt. Functions here never modify the slice they are given.
package alerts

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "signalist/internal/errors"
	"signalist/internal/models"
	"signalist/internal/validator"
)

// Create validates in and returns a new active alert stamped with now.
func Create(in models.AlertInput, now time.Time) (models.Alert, error) {
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	if in.Symbol == "" {
		return models.Alert{}, apperrors.ErrInvalidSymbol
	}
	if math.IsNaN(in.TargetPrice) || math.IsInf(in.TargetPrice, 0) || in.TargetPrice <= 0 {
		return models.Alert{}, apperrors.ErrInvalidTargetPrice
	}
	if in.Type != models.AlertAbove && in.Type != models.AlertBelow {
		return models.Alert{}, apperrors.ErrInvalidAlertType
	}
	if math.IsNaN(in.CurrentPrice) || math.IsInf(in.CurrentPrice, 0) {
		in.CurrentPrice = 0
	}
	if err := validator.Struct(in); err != nil {
		return models.Alert{}, err
	}
	if err := checkDirection(in); err != nil {
		return models.Alert{}, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = in.Symbol
	}
	return models.Alert{
		ID:           uuid.NewString(),
		Symbol:       in.Symbol,
		Name:         name,
		Type:         in.Type,
		TargetPrice:  in.TargetPrice,
		CurrentPrice: in.CurrentPrice,
		IsActive:     true,
		CreatedAt:    now.UTC(),
	}, nil
}

// checkDirection rejects rules that would fire immediately. It is skipped
// when the current price is unknown.
func checkDirection(in models.AlertInput) error {
	if in.CurrentPrice <= 0 {
		return nil
	}
	switch {
	case in.Type == models.AlertAbove && in.TargetPrice <= in.CurrentPrice:
		return apperrors.WithMessage(apperrors.ErrAlertDirection,
			fmt.Sprintf("Target price must be above current price ($%.2f)", in.CurrentPrice))
	case in.Type == models.AlertBelow && in.TargetPrice >= in.CurrentPrice:
		return apperrors.WithMessage(apperrors.ErrAlertDirection,
			fmt.Sprintf("Target price must be below current price ($%.2f)", in.CurrentPrice))
	}
	return nil
}

// ParseTargetPrice parses a user-entered target price.
func ParseTargetPrice(raw string) (float64, error) {
	price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInvalidTargetPrice, err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, apperrors.ErrInvalidTargetPrice
	}
	return price, nil
}

// Remove drops the alert with id. Unknown ids are a no-op.
func Remove(alerts []models.Alert, id string) []models.Alert {
	out := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

// Toggle flips IsActive on the alert with id. TriggeredAt is left alone.
func Toggle(alerts []models.Alert, id string) []models.Alert {
	out := make([]models.Alert, len(alerts))
	for i, a := range alerts {
		if a.ID == id {
			a.IsActive = !a.IsActive
		}
		out[i] = a
	}
	return out
}

// Find returns the alert with id.
func Find(alerts []models.Alert, id string) (models.Alert, bool) {
	for _, a := range alerts {
		if a.ID == id {
			return a, true
		}
	}
	return models.Alert{}, false
}

// Evaluate checks every active alert against quotes and returns the updated
// list together with the alerts that fired on this call. Alerts without a
// usable quote are left unchanged.
func Evaluate(alerts []models.Alert, quotes models.Quotes, now time.Time) ([]models.Alert, []models.Alert) {
	out := make([]models.Alert, len(alerts))
	var fired []models.Alert
	for i, a := range alerts {
		out[i] = a
		if !a.IsActive {
			continue
		}
		q, ok := quotes[a.Symbol]
		if !ok || q.Price <= 0 {
			continue
		}
		if !Crossed(a, q.Price) {
			continue
		}
		at := now.UTC()
		a.IsActive = false
		a.TriggeredAt = &at
		out[i] = a
		fired = append(fired, a)
	}
	return out, fired
}

// Crossed reports whether price meets the alert's threshold.
func Crossed(a models.Alert, price float64) bool {
	switch a.Type {
	case models.AlertAbove:
		return price >= a.TargetPrice
	case models.AlertBelow:
		return price <= a.TargetPrice
	}
	return false
}

// ForSymbol returns the alerts watching symbol, ignoring case.
func ForSymbol(alerts []models.Alert, symbol string) []models.Alert {
	out := make([]models.Alert, 0)
	for _, a := range alerts {
		if strings.EqualFold(a.Symbol, symbol) {
			out = append(out, a)
		}
	}
	return out
}

func Active(alerts []models.Alert) []models.Alert {
	return filter(alerts, func(a models.Alert) bool { return a.IsActive })
}

func Triggered(alerts []models.Alert) []models.Alert {
	return filter(alerts, func(a models.Alert) bool { return !a.IsActive && a.TriggeredAt != nil })
}

// Symbols lists the distinct symbols of the active alerts.
func Symbols(alerts []models.Alert) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, a := range alerts {
		if !a.IsActive || seen[a.Symbol] {
			continue
		}
		seen[a.Symbol] = true
		out = append(out, a.Symbol)
	}
	return out
}

func filter(alerts []models.Alert, keep func(models.Alert) bool) []models.Alert {
	out := make([]models.Alert, 0)
	for _, a := range alerts {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}
