package market

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"signalist/internal/models"
)

//go:embed mockdata/quotes.yaml
var mockYAML []byte

type mockDataset struct {
	Quotes  []models.Quote       `yaml:"quotes"`
	Indices []models.MarketIndex `yaml:"indices"`
}

// MockProvider serves the embedded offline dataset.
type MockProvider struct {
	quotes  models.Quotes
	indices []models.MarketIndex
}

func NewMockProvider() (*MockProvider, error) {
	return newMockProvider(mockYAML)
}

func newMockProvider(raw []byte) (*MockProvider, error) {
	var ds mockDataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("decode mock dataset: %w", err)
	}
	return &MockProvider{quotes: Index(ds.Quotes), indices: ds.Indices}, nil
}

func (m *MockProvider) Name() string { return "Mock" }

func (m *MockProvider) Configured() bool { return true }

// FetchQuotes returns the dataset entries for symbols, or the whole dataset
// when symbols is empty. Unknown symbols are simply absent.
func (m *MockProvider) FetchQuotes(_ context.Context, symbols []string) ([]models.Quote, error) {
	if len(symbols) == 0 {
		return List(m.quotes), nil
	}
	return List(Only(m.quotes, symbols)), nil
}

// Quote looks up one dataset entry.
func (m *MockProvider) Quote(symbol string) (models.Quote, bool) {
	q, ok := m.quotes[normalize(symbol)]
	return q, ok
}

func (m *MockProvider) Indices() []models.MarketIndex {
	out := make([]models.MarketIndex, len(m.indices))
	copy(out, m.indices)
	return out
}
