// Package yahoo implements the quote and fundamentals providers on top of
// go-yfinance.
package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/forecaster/internal/domain"
	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
)

// DefaultAliases maps local index names to provider tickers
var DefaultAliases = map[string]string{
	"VNINDEX":  "^VNINDEX.VN",
	"HNXINDEX": "^HNX.VN",
	"UPINDEX":  "^UPCOM.VN",
}

// periods lists provider history ranges and the calendar days they span,
// smallest first.
var periods = []struct {
	name string
	days int
}{
	{"5d", 5},
	{"1mo", 30},
	{"3mo", 90},
	{"6mo", 182},
	{"1y", 365},
	{"2y", 730},
	{"5y", 1826},
	{"10y", 3652},
}

// Client implements domain.QuoteProvider and domain.FundamentalsProvider
type Client struct {
	log     zerolog.Logger
	suffix  string
	aliases map[string]string

	fetchHistory func(symbol, period string) ([]domain.Bar, error)
	fetchRatios  func(symbol string) (domain.Ratios, error)
}

// NewClient creates a new provider client. suffix is appended to plain
// exchange symbols (".VN" for HOSE listings); aliases override DefaultAliases.
func NewClient(suffix string, aliases map[string]string, log zerolog.Logger) *Client {
	merged := make(map[string]string, len(DefaultAliases)+len(aliases))
	for k, v := range DefaultAliases {
		merged[k] = v
	}
	for k, v := range aliases {
		merged[strings.ToUpper(k)] = v
	}

	return &Client{
		log:          log.With().Str("client", "yahoo").Logger(),
		suffix:       suffix,
		aliases:      merged,
		fetchHistory: history,
		fetchRatios:  ratios,
	}
}

// ProviderSymbol converts a local symbol to the provider's ticker
func (c *Client) ProviderSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if alias, ok := c.aliases[symbol]; ok {
		return alias
	}
	if strings.ContainsAny(symbol, ".^=") {
		return symbol
	}
	return symbol + c.suffix
}

// PeriodFor returns the smallest provider range covering days calendar days
func PeriodFor(days int) string {
	for _, p := range periods {
		if days <= p.days {
			return p.name
		}
	}
	return "max"
}

// Bars returns daily bars for symbol with start <= date <= end, ascending
func (c *Client) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	days := int(end.Sub(start).Hours()/24) + 1
	providerSymbol := c.ProviderSymbol(symbol)
	period := PeriodFor(days)

	raw, err := c.fetchHistory(providerSymbol, period)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %s: %w", symbol, err)
	}

	startDay := domain.DateKey(start)
	endDay := domain.DateKey(end)
	bars := make([]domain.Bar, 0, len(raw))
	for _, bar := range raw {
		day := domain.DateKey(bar.Time)
		if day < startDay || day > endDay || bar.Close <= 0 {
			continue
		}
		bars = append(bars, bar)
	}
	domain.SortBars(bars)

	c.log.Debug().
		Str("symbol", symbol).
		Str("provider_symbol", providerSymbol).
		Str("period", period).
		Int("count", len(bars)).
		Msg("Fetched history")

	return bars, nil
}

// Ratios returns the latest fundamental ratios for symbol
func (c *Client) Ratios(ctx context.Context, symbol string) (domain.Ratios, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ratios{}, err
	}

	r, err := c.fetchRatios(c.ProviderSymbol(symbol))
	if err != nil {
		return domain.Ratios{}, fmt.Errorf("failed to get ratios for %s: %w", symbol, err)
	}
	return r.Sanitized(), nil
}

func history(symbol, period string) ([]domain.Bar, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	raw, err := t.History(models.HistoryParams{
		Period:     period,
		Interval:   "1d",
		AutoAdjust: true,
	})
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, bar := range raw {
		bars = append(bars, domain.Bar{
			Time:   bar.Date,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: float64(bar.Volume),
		})
	}
	return bars, nil
}

func ratios(symbol string) (domain.Ratios, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return domain.Ratios{}, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	info, err := t.Info()
	if err != nil {
		return domain.Ratios{}, err
	}
	if info == nil {
		return domain.Ratios{}, fmt.Errorf("no info for %s", symbol)
	}

	price := info.CurrentPrice
	if price <= 0 {
		price = info.RegularMarketPreviousClose
	}

	return DeriveRatios(price, info.TrailingPE, info.PriceToBook, info.ReturnOnEquity, info.DebtToEquity), nil
}

// DeriveRatios fills EPS and ROA from the quantities the provider reports.
// EPS is price over trailing P/E. ROA uses ROE / (1 + D/E), where the
// provider quotes debt-to-equity in percent. A missing or zero D/E leaves
// ROA unset.
func DeriveRatios(price, pe, pb, roe, debtToEquity float64) domain.Ratios {
	r := domain.Ratios{PE: pe, PB: pb, ROE: roe}
	if pe > 0 && price > 0 {
		r.EPS = price / pe
	}
	if debtToEquity > 0 {
		r.ROA = roe / (1 + debtToEquity/100)
	}
	return r.Sanitized()
}
