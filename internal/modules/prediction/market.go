package prediction

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/forecaster/internal/domain"
	"github.com/aristath/forecaster/internal/utils"
)

// timestampLayout matches a naive ISO-8601 timestamp with microseconds
const timestampLayout = "2006-01-02T15:04:05.000000"

// MarketOverview returns the latest day-over-day change of the benchmark
// indices and representative stocks. Instruments that fail are omitted.
func (s *Service) MarketOverview(ctx context.Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("Market overview panicked")
			res = Fail(fmt.Sprint(r))
		}
	}()

	defer utils.OperationTimer("market_overview", s.log, s.latency())()

	end := s.cache.Now()
	start := end.AddDate(0, 0, -s.cfg.MarketWindowDays)

	overview := &Overview{
		Indices:   make([]Quote, 0, len(s.cfg.MarketIndices)),
		TopStocks: make([]Quote, 0, len(s.cfg.MarketStocks)),
	}

	for _, idx := range s.cfg.MarketIndices {
		if q, ok := s.quote(ctx, idx, start, end, false); ok {
			overview.Indices = append(overview.Indices, q)
		}
	}
	for _, sym := range s.cfg.MarketStocks {
		if q, ok := s.quote(ctx, sym, start, end, true); ok {
			overview.TopStocks = append(overview.TopStocks, q)
		}
	}

	overview.Timestamp = s.cache.Now().Format(timestampLayout)
	s.log.Info().
		Int("indices", len(overview.Indices)).
		Int("stocks", len(overview.TopStocks)).
		Msg("Market overview built")
	return Result{Overview: overview}
}

// quote builds one instrument row, reporting false on any failure
func (s *Service) quote(ctx context.Context, symbol string, start, end time.Time, withVolume bool) (q Quote, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn().Str("symbol", symbol).Interface("panic", r).Msg("Failed to fetch instrument")
			ok = false
		}
	}()

	bars, err := s.quotes.Bars(ctx, symbol, start, end)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch instrument")
		return Quote{}, false
	}
	if len(bars) == 0 {
		s.log.Warn().Str("symbol", symbol).Msg("No recent bars for instrument")
		return Quote{}, false
	}
	bars = append([]domain.Bar(nil), bars...)
	domain.SortBars(bars)

	latest := bars[len(bars)-1]
	prev := latest
	if len(bars) > 1 {
		prev = bars[len(bars)-2]
	}

	q = Quote{
		Symbol: symbol,
		Price:  latest.Close,
		Change: latest.Close - prev.Close,
	}
	if prev.Close != 0 {
		q.ChangePct = (latest.Close - prev.Close) / prev.Close * 100
	}
	if withVolume {
		v := int64(latest.Volume)
		q.Volume = &v
	}
	return q, true
}
