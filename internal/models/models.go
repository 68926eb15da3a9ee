package models

import "time"

type Holding struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Shares       float64 `json:"shares"`
	AvgCost      float64 `json:"avgCost"`
	PurchaseDate string  `json:"purchaseDate"`
}

// HoldingInput is what a caller supplies to buy into a position. The
// purchase date is assigned by the valuator.
type HoldingInput struct {
	Symbol  string  `json:"symbol" validate:"required,ticker"`
	Name    string  `json:"name"`
	Shares  float64 `json:"shares" validate:"gt=0"`
	AvgCost float64 `json:"avgCost" validate:"gte=0"`
}

type EnrichedHolding struct {
	Holding
	CurrentPrice    float64 `json:"currentPrice"`
	CurrentValue    float64 `json:"currentValue"`
	GainLoss        float64 `json:"gainLoss"`
	GainLossPercent float64 `json:"gainLossPercent"`
}

type Portfolio struct {
	TotalValue       float64           `json:"totalValue"`
	TotalCost        float64           `json:"totalCost"`
	TotalGain        float64           `json:"totalGain"`
	TotalGainPercent float64           `json:"totalGainPercent"`
	DayChange        float64           `json:"dayChange"`
	DayChangePercent float64           `json:"dayChangePercent"`
	Holdings         []EnrichedHolding `json:"holdings"`
}

type AlertType string

const (
	AlertAbove AlertType = "above"
	AlertBelow AlertType = "below"
)

type Alert struct {
	ID           string     `json:"id"`
	Symbol       string     `json:"symbol"`
	Name         string     `json:"name"`
	Type         AlertType  `json:"type"`
	TargetPrice  float64    `json:"targetPrice"`
	CurrentPrice float64    `json:"currentPrice"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	TriggeredAt  *time.Time `json:"triggeredAt,omitempty"`
}

// AlertInput carries a create request. A non-positive CurrentPrice means the live
// price is unknown.
type AlertInput struct {
	Symbol       string    `json:"symbol" validate:"required,ticker"`
	Name         string    `json:"name"`
	Type         AlertType `json:"type" validate:"required,alert_type"`
	TargetPrice  float64   `json:"targetPrice" validate:"gt=0"`
	CurrentPrice float64   `json:"currentPrice"`
}

// Quote is the single quote shape shared by every provider. Fields after
// ChangePercent are only filled by providers that report them.
type Quote struct {
	Symbol        string  `json:"symbol" yaml:"symbol"`
	Name          string  `json:"name,omitempty" yaml:"name"`
	Price         float64 `json:"price" yaml:"price"`
	Change        float64 `json:"change" yaml:"change"`
	ChangePercent float64 `json:"changePercent" yaml:"changePercent"`
	High          float64 `json:"high,omitempty" yaml:"high"`
	Low           float64 `json:"low,omitempty" yaml:"low"`
	Open          float64 `json:"open,omitempty" yaml:"open"`
	PreviousClose float64 `json:"previousClose,omitempty" yaml:"previousClose"`
	Timestamp     int64   `json:"timestamp,omitempty" yaml:"timestamp"`
	Exchange      string  `json:"exchange,omitempty" yaml:"exchange"`
	Sector        string  `json:"sector,omitempty" yaml:"sector"`
}

// Quotes is keyed by upper-case symbol.
type Quotes map[string]Quote

type MarketIndex struct {
	Name          string  `json:"name" yaml:"name"`
	Symbol        string  `json:"symbol" yaml:"symbol"`
	Value         float64 `json:"value" yaml:"value"`
	Change        float64 `json:"change" yaml:"change"`
	ChangePercent float64 `json:"changePercent" yaml:"changePercent"`
}

type DashboardSnapshot struct {
	Portfolio     Portfolio     `json:"portfolio"`
	Quotes        []Quote       `json:"quotes"`
	Indices       []MarketIndex `json:"indices"`
	AlertsFired   []Alert       `json:"alertsFired,omitempty"`
	UsingMockData bool          `json:"isUsingMockData"`
	Error         string        `json:"error,omitempty"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

type NotificationSettings struct {
	PriceAlerts        bool `json:"priceAlerts"`
	MarketNews         bool `json:"marketNews"`
	PortfolioUpdates   bool `json:"portfolioUpdates"`
	EmailNotifications bool `json:"emailNotifications"`
}

type AppearanceSettings struct {
	DarkMode    bool `json:"darkMode"`
	CompactView bool `json:"compactView"`
}

type RegionalSettings struct {
	Language   string `json:"language"`
	Currency   string `json:"currency"`
	Timezone   string `json:"timezone"`
	DateFormat string `json:"dateFormat"`
}

// Settings is the user preference document. Notifications.PriceAlerts gates
// alert notifications; the rest is stored for clients.
type Settings struct {
	Notifications NotificationSettings `json:"notifications"`
	Appearance    AppearanceSettings   `json:"appearance"`
	Regional      RegionalSettings     `json:"regional"`
}

func DefaultSettings() Settings {
	return Settings{
		Notifications: NotificationSettings{PriceAlerts: true, MarketNews: true, EmailNotifications: true},
		Appearance:    AppearanceSettings{DarkMode: true},
		Regional: RegionalSettings{
			Language:   "English (US)",
			Currency:   "USD ($)",
			Timezone:   "Eastern Time (ET)",
			DateFormat: "MM/DD/YYYY",
		},
	}
}
