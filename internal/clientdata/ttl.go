package clientdata

import "time"

// Default freshness windows for the cache files.
const (
	TTLSentiment    = 24 * time.Hour   // Headline sentiment per symbol
	TTLExchangeRate = 24 * time.Hour   // USD/VND rate
	TTLNews         = 12 * time.Hour   // Headline digest served by the news command
	TTLPrediction   = 30 * time.Minute // Forecast payload, measured by file mtime
)

// Fresh reports whether an entry stored at stored is still valid at now.
// The boundary is exclusive: an entry exactly ttl old is stale.
func Fresh(stored, now time.Time, ttl time.Duration) bool {
	return now.Sub(stored) < ttl
}
