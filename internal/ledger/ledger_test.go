package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/forecaster/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func setupLedger(t *testing.T) *Ledger {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	l := New(db, zerolog.Nop())
	require.NoError(t, l.Migrate())
	return l
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestAppendAndRecent(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, date := range []string{"2024-02-28", "2024-02-29", "2024-03-01"} {
		_, err := l.Append(ctx, Entry{
			Symbol:      "FPT",
			LatestDate:  date,
			LatestClose: 100,
			Prediction:  101,
			ChangePct:   1,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := l.Append(ctx, Entry{Symbol: "VCB", LatestDate: "2024-03-01", LatestClose: 90, Prediction: 89})
	require.NoError(t, err)

	recent, err := l.Recent(ctx, "FPT", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2024-03-01", recent[0].LatestDate)
	assert.Equal(t, "2024-02-29", recent[1].LatestDate)
	assert.NotEmpty(t, recent[0].ID)
	assert.Nil(t, recent[0].ActualClose)
}

func TestSettleAndSummarize(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, Entry{Symbol: "HPG", LatestDate: "2024-03-01", LatestClose: 100, Prediction: 102})
	require.NoError(t, err)
	_, err = l.Append(ctx, Entry{Symbol: "HPG", LatestDate: "2024-03-04", LatestClose: 103, Prediction: 101})
	require.NoError(t, err)
	_, err = l.Append(ctx, Entry{Symbol: "HPG", LatestDate: "2024-03-05", LatestClose: 104, Prediction: 105})
	require.NoError(t, err)

	bars := []domain.Bar{
		{Time: day("2024-03-05"), Close: 104},
		{Time: day("2024-03-01"), Close: 100},
		{Time: day("2024-03-04"), Close: 103},
	}
	n, err := l.Settle(ctx, "HPG", bars)
	require.NoError(t, err)
	// the 2024-03-05 forecast has no next session yet
	assert.Equal(t, 2, n)

	n, err = l.Settle(ctx, "HPG", bars)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	s, err := l.Summarize(ctx, "HPG")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Forecasts)
	assert.Equal(t, 2, s.Settled)
	// |102-103| and |101-104|
	assert.InDelta(t, 2.0, s.MAE, 1e-9)
	// first called up and went up, second called down and went up
	assert.InDelta(t, 0.5, s.HitRate, 1e-9)
}

func TestSummarize_Empty(t *testing.T) {
	l := setupLedger(t)
	s, err := l.Summarize(context.Background(), "VNM")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Forecasts)
	assert.Equal(t, 0.0, s.MAE)
}

func TestSettle_NoBars(t *testing.T) {
	l := setupLedger(t)
	n, err := l.Settle(context.Background(), "VNM", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSettle_FailureRollsBackEveryUpdate(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, Entry{ID: "a", Symbol: "MSN", LatestDate: "2024-03-01", LatestClose: 100, Prediction: 101})
	require.NoError(t, err)
	_, err = l.Append(ctx, Entry{ID: "b", Symbol: "MSN", LatestDate: "2024-03-04", LatestClose: 102, Prediction: 103})
	require.NoError(t, err)

	_, err = l.db.Exec(`
		CREATE TRIGGER reject_b BEFORE UPDATE ON forecasts
		WHEN NEW.id = 'b'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END
	`)
	require.NoError(t, err)

	bars := []domain.Bar{
		{Time: day("2024-03-01"), Close: 100},
		{Time: day("2024-03-04"), Close: 102},
		{Time: day("2024-03-05"), Close: 104},
	}
	n, err := l.Settle(ctx, "MSN", bars)
	assert.ErrorContains(t, err, "rejected")
	assert.Equal(t, 0, n)

	recent, err := l.Recent(ctx, "MSN", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	for _, e := range recent {
		assert.Nil(t, e.ActualClose, "forecast %s", e.ID)
	}

	_, err = l.db.Exec(`DROP TRIGGER reject_b`)
	require.NoError(t, err)
	n, err = l.Settle(ctx, "MSN", bars)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
