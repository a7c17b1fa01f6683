package prices

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// Repository persists daily closing prices per symbol.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a price history repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

// SaveHistory upserts one symbol's closing price series in a single
// transaction and stamps the fetch time.
func (r *Repository) SaveHistory(symbol string, series *timeseries.Series) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin price save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO price_history (symbol, price_date, close, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol, price_date) DO UPDATE SET
			close = excluded.close,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return fmt.Errorf("prepare price insert: %w", err)
	}
	defer stmt.Close()

	fetchedAt := time.Now().UTC().Format("2006-01-02 15:04:05")
	for i := 0; i < series.Len(); i++ {
		if _, err := stmt.Exec(symbol, series.Date(i).String(), series.Value(i), fetchedAt); err != nil {
			return fmt.Errorf("insert price %s %s: %w", symbol, series.Date(i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit price save: %w", err)
	}
	return nil
}

// LoadHistory reads one symbol's stored closing price series in date order.
func (r *Repository) LoadHistory(symbol string) (*timeseries.Series, error) {
	rows, err := r.db.Query(`
		SELECT price_date, close
		FROM price_history
		WHERE symbol = ?
		ORDER BY price_date
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query price history for %s: %w", symbol, err)
	}
	defer rows.Close()

	series := timeseries.NewSeries(0)
	for rows.Next() {
		var dateStr string
		var close float64
		if err := rows.Scan(&dateStr, &close); err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		date, err := timeseries.ParseDate(dateStr)
		if err != nil {
			r.log.Warn().Str("symbol", symbol).Str("date", dateStr).Msg("Skipping unparseable price date")
			continue
		}
		series.Append(date, close)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price rows: %w", err)
	}
	return series, nil
}

// LastFetchedAt returns when the symbol's history was last refreshed;
// ok is false when nothing is stored.
func (r *Repository) LastFetchedAt(symbol string) (time.Time, bool, error) {
	var fetchedAt sql.NullString
	err := r.db.QueryRow(
		"SELECT MAX(fetched_at) FROM price_history WHERE symbol = ?", symbol,
	).Scan(&fetchedAt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last fetch for %s: %w", symbol, err)
	}
	if !fetchedAt.Valid || fetchedAt.String == "" {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse("2006-01-02 15:04:05", fetchedAt.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse fetch time %q: %w", fetchedAt.String, err)
	}
	return ts, true, nil
}

// DeleteHistory removes one symbol's stored prices.
func (r *Repository) DeleteHistory(symbol string) error {
	if _, err := r.db.Exec("DELETE FROM price_history WHERE symbol = ?", symbol); err != nil {
		return fmt.Errorf("delete price history for %s: %w", symbol, err)
	}
	return nil
}
