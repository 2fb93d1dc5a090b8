// Package sentiment scores news headlines about a symbol and caches the
// result per symbol.
package sentiment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/forecaster/internal/clientdata"
	"github.com/rs/zerolog"
)

// Neutral is the score used when nothing is known about a symbol
const Neutral = 0.5

// storedHeadlines is how many headlines a cache entry keeps
const storedHeadlines = 5

// Entry is the per-symbol cache record
type Entry struct {
	Symbol    string    `json:"symbol"`
	Sentiment float64   `json:"sentiment"`
	Timestamp time.Time `json:"timestamp"`
	Headlines []string  `json:"headlines"`
}

// CacheFile returns the cache file name for symbol
func CacheFile(symbol string) string {
	return fmt.Sprintf("sentiment_%s.json", strings.ToUpper(symbol))
}

// HeadlineSource returns recent headlines for a symbol
type HeadlineSource interface {
	Headlines(ctx context.Context, symbol string, max int) []string
}

// Service computes and caches sentiment scores
type Service struct {
	store        *clientdata.Store
	source       HeadlineSource
	translator   Translator
	analyzer     Analyzer
	english      Analyzer
	maxHeadlines int
	log          zerolog.Logger
}

// NewService creates a sentiment service. translator may be nil.
func NewService(store *clientdata.Store, source HeadlineSource, translator Translator, analyzer Analyzer, maxHeadlines int, log zerolog.Logger) *Service {
	if maxHeadlines <= 0 {
		maxHeadlines = 10
	}
	return &Service{
		store:        store,
		source:       source,
		translator:   translator,
		analyzer:     analyzer,
		maxHeadlines: maxHeadlines,
		log:          log.With().Str("service", "sentiment").Logger(),
	}
}

// SetEnglishAnalyzer sets the analyzer for successfully translated headlines.
// Untranslated headlines stay with the primary analyzer.
func (s *Service) SetEnglishAnalyzer(a Analyzer) {
	s.english = a
}

// Score returns the sentiment of symbol in [0, 1]. A cache entry younger than
// ttl is reused; otherwise headlines are scraped and scored and the entry is
// rewritten. No headlines yields Neutral.
func (s *Service) Score(ctx context.Context, symbol string, ttl time.Duration) float64 {
	symbol = strings.ToUpper(symbol)
	if entry, ok := s.cached(symbol, ttl); ok {
		return entry.Sentiment
	}

	headlines := s.source.Headlines(ctx, symbol, s.maxHeadlines)
	if len(headlines) > s.maxHeadlines {
		headlines = headlines[:s.maxHeadlines]
	}

	entry := s.evaluate(ctx, symbol, headlines)
	s.save(entry)

	s.log.Info().
		Str("symbol", symbol).
		Int("headlines", len(headlines)).
		Float64("sentiment", entry.Sentiment).
		Msg("Sentiment scored")

	return entry.Sentiment
}

// Digest returns the full headline digest for symbol. An entry younger than
// ttl is returned as stored; otherwise a fresh digest carrying every scraped
// headline is returned and the cache is refreshed.
func (s *Service) Digest(ctx context.Context, symbol string, ttl time.Duration) Entry {
	symbol = strings.ToUpper(symbol)
	if entry, ok := s.cached(symbol, ttl); ok {
		return entry
	}

	headlines := s.source.Headlines(ctx, symbol, s.maxHeadlines)
	entry := s.evaluate(ctx, symbol, headlines)
	s.save(entry)

	return entry
}

func (s *Service) cached(symbol string, ttl time.Duration) (Entry, bool) {
	var entry Entry
	if err := s.store.Read(CacheFile(symbol), &entry); err != nil {
		return Entry{}, false
	}
	if !clientdata.Fresh(entry.Timestamp, s.store.Now(), ttl) {
		return Entry{}, false
	}
	entry.Sentiment = clamp(entry.Sentiment, 0, 1)
	if entry.Headlines == nil {
		entry.Headlines = []string{}
	}

	s.log.Debug().
		Str("symbol", symbol).
		Float64("sentiment", entry.Sentiment).
		Msg("Cache hit")
	return entry, true
}

func (s *Service) evaluate(ctx context.Context, symbol string, headlines []string) Entry {
	entry := Entry{
		Symbol:    symbol,
		Sentiment: Neutral,
		Timestamp: s.store.Now(),
		Headlines: append([]string{}, headlines...),
	}
	if len(headlines) == 0 {
		return entry
	}

	var sum float64
	for _, h := range headlines {
		sum += s.headlineScore(ctx, h)
	}
	entry.Sentiment = clamp(sum/float64(len(headlines)), 0, 1)
	return entry
}

// headlineScore maps polarity [-1, 1] onto [0, 1]
func (s *Service) headlineScore(ctx context.Context, headline string) float64 {
	text, analyzer := headline, s.analyzer
	if s.translator != nil {
		translated, err := s.translator.Translate(ctx, headline, "vi", "en")
		if err != nil {
			s.log.Debug().Err(err).Msg("Translation failed, scoring original text")
		} else {
			text = translated
			if s.english != nil {
				analyzer = s.english
			}
		}
	}
	p := clamp(analyzer.Polarity(text), -1, 1)
	return (p + 1) / 2
}

func (s *Service) save(entry Entry) {
	stored := entry
	if len(stored.Headlines) > storedHeadlines {
		stored.Headlines = stored.Headlines[:storedHeadlines]
	}
	if err := s.store.Write(CacheFile(entry.Symbol), stored); err != nil {
		s.log.Warn().Err(err).Str("symbol", entry.Symbol).Msg("Failed to cache sentiment")
	}
}
