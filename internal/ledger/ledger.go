// Package ledger keeps the history of fresh forecasts and, once the next
// session has closed, the close that actually printed.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/aristath/forecaster/internal/database"
	"github.com/aristath/forecaster/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Schema is the ledger table layout
const Schema = `
CREATE TABLE IF NOT EXISTS forecasts (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	latest_date TEXT NOT NULL,
	latest_close REAL NOT NULL,
	prediction REAL NOT NULL,
	change_pct REAL NOT NULL,
	actual_close REAL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_forecasts_symbol_date ON forecasts(symbol, latest_date);
`

// Entry is one recorded forecast
type Entry struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	LatestDate  string    `json:"latest_date"`
	LatestClose float64   `json:"latest_close"`
	Prediction  float64   `json:"prediction"`
	ChangePct   float64   `json:"change_pct"`
	ActualClose *float64  `json:"actual_close,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary scores the settled forecasts of one symbol
type Summary struct {
	Symbol    string  `json:"symbol"`
	Forecasts int     `json:"forecasts"`
	Settled   int     `json:"settled"`
	MAE       float64 `json:"mae"`
	HitRate   float64 `json:"direction_hit_rate"`
}

// Ledger is the forecast repository
type Ledger struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// New creates a ledger on an open connection
func New(db *sql.DB, log zerolog.Logger) *Ledger {
	return &Ledger{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
		now: time.Now,
	}
}

// Migrate creates the ledger table
func (l *Ledger) Migrate() error {
	if _, err := l.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}

// Append records a forecast and returns its id
func (l *Ledger) Append(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO forecasts (id, symbol, latest_date, latest_close, prediction, change_pct, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Symbol, e.LatestDate, e.LatestClose, e.Prediction, e.ChangePct, e.CreatedAt.Unix())
	if err != nil {
		return "", fmt.Errorf("failed to append forecast: %w", err)
	}

	l.log.Debug().Str("symbol", e.Symbol).Str("id", e.ID).Msg("Forecast recorded")
	return e.ID, nil
}

// Settle fills the actual close of unsettled forecasts whose next session
// appears in bars. It returns how many rows were settled. The updates commit
// together or not at all.
func (l *Ledger) Settle(ctx context.Context, symbol string, bars []domain.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	sorted := append([]domain.Bar(nil), bars...)
	domain.SortBars(sorted)

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, latest_date FROM forecasts
		WHERE symbol = ? AND actual_close IS NULL
	`, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to query open forecasts: %w", err)
	}

	pending := make(map[string]string)
	for rows.Next() {
		var id, date string
		if err := rows.Scan(&id, &date); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan forecast: %w", err)
		}
		pending[id] = date
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate forecasts: %w", err)
	}

	settled := 0
	err = database.WithTransaction(l.db, func(tx *sql.Tx) error {
		for id, date := range pending {
			next, ok := nextClose(sorted, date)
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE forecasts SET actual_close = ? WHERE id = ?`, next, id); err != nil {
				return fmt.Errorf("failed to settle forecast %s: %w", id, err)
			}
			settled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return settled, nil
}

func nextClose(sorted []domain.Bar, date string) (float64, bool) {
	for _, b := range sorted {
		if domain.DateKey(b.Time) > date {
			return b.Close, true
		}
	}
	return 0, false
}

// Recent returns up to limit forecasts for symbol, newest first
func (l *Ledger) Recent(ctx context.Context, symbol string, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, symbol, latest_date, latest_close, prediction, change_pct, actual_close, created_at
		FROM forecasts WHERE symbol = ?
		ORDER BY created_at DESC, latest_date DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var actual sql.NullFloat64
		var created int64
		if err := rows.Scan(&e.ID, &e.Symbol, &e.LatestDate, &e.LatestClose, &e.Prediction, &e.ChangePct, &actual, &created); err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		if actual.Valid {
			v := actual.Float64
			e.ActualClose = &v
		}
		e.CreatedAt = time.Unix(created, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summarize scores the settled forecasts of symbol
func (l *Ledger) Summarize(ctx context.Context, symbol string) (Summary, error) {
	s := Summary{Symbol: symbol}

	rows, err := l.db.QueryContext(ctx, `
		SELECT latest_close, prediction, actual_close FROM forecasts WHERE symbol = ?
	`, symbol)
	if err != nil {
		return s, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	var absErr float64
	hits := 0
	for rows.Next() {
		var latest, predicted float64
		var actual sql.NullFloat64
		if err := rows.Scan(&latest, &predicted, &actual); err != nil {
			return s, fmt.Errorf("failed to scan forecast: %w", err)
		}
		s.Forecasts++
		if !actual.Valid {
			continue
		}
		s.Settled++
		absErr += math.Abs(predicted - actual.Float64)
		if (predicted-latest)*(actual.Float64-latest) > 0 {
			hits++
		}
	}
	if err := rows.Err(); err != nil {
		return s, err
	}

	if s.Settled > 0 {
		s.MAE = absErr / float64(s.Settled)
		s.HitRate = float64(hits) / float64(s.Settled)
	}
	return s, nil
}
