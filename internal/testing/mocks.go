package testing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aristath/forecaster/internal/domain"
)

// MockQuoteProvider serves fixed bars per symbol, filtered by date range
type MockQuoteProvider struct {
	mu     sync.Mutex
	bars   map[string][]domain.Bar
	errs   map[string]error
	calls  map[string]int
	panics map[string]bool
}

// NewMockQuoteProvider creates an empty provider
func NewMockQuoteProvider() *MockQuoteProvider {
	return &MockQuoteProvider{
		bars:   make(map[string][]domain.Bar),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
		panics: make(map[string]bool),
	}
}

// SetBars sets the bars returned for symbol
func (m *MockQuoteProvider) SetBars(symbol string, bars []domain.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[strings.ToUpper(symbol)] = bars
}

// SetError makes requests for symbol fail
func (m *MockQuoteProvider) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[strings.ToUpper(symbol)] = err
}

// SetPanic makes requests for symbol panic
func (m *MockQuoteProvider) SetPanic(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[strings.ToUpper(symbol)] = true
}

// Calls returns how many times symbol was requested
func (m *MockQuoteProvider) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[strings.ToUpper(symbol)]
}

// Bars implements domain.QuoteProvider
func (m *MockQuoteProvider) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	symbol = strings.ToUpper(symbol)
	m.calls[symbol]++
	if m.panics[symbol] {
		panic(fmt.Sprintf("provider exploded for %s", symbol))
	}
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}

	from, to := domain.DateKey(start), domain.DateKey(end)
	var out []domain.Bar
	for _, b := range m.bars[symbol] {
		if d := domain.DateKey(b.Time); d >= from && d <= to {
			out = append(out, b)
		}
	}
	return out, nil
}

// MockFundamentals returns fixed ratios or an error
type MockFundamentals struct {
	Value domain.Ratios
	Err   error
}

// Ratios implements domain.FundamentalsProvider
func (m *MockFundamentals) Ratios(ctx context.Context, symbol string) (domain.Ratios, error) {
	if m.Err != nil {
		return domain.Ratios{}, m.Err
	}
	return m.Value, nil
}

// MockRateSource returns a fixed rate
type MockRateSource struct {
	Rate float64
}

// GetRate implements domain.RateSource
func (m *MockRateSource) GetRate(ctx context.Context) float64 {
	return m.Rate
}

// MockSentiment returns a fixed score, optionally writing noise or panicking
type MockSentiment struct {
	mu    sync.Mutex
	Value float64
	Panic bool
	calls int
}

// Score implements domain.SentimentSource
func (m *MockSentiment) Score(ctx context.Context, symbol string, ttl time.Duration) float64 {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.Panic {
		panic("sentiment exploded")
	}
	return m.Value
}

// Calls returns how many scores were requested
func (m *MockSentiment) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
