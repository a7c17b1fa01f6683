package benchmarks

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Benchmark is one catalog entry.
type Benchmark struct {
	Symbol        string     `json:"symbol"`
	Name          string     `json:"name"`
	LastRefreshed *time.Time `json:"last_refreshed,omitempty"`
}

// Repository persists the benchmark catalog.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a benchmark repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "benchmarks").Logger(),
	}
}

// Upsert inserts or renames a catalog entry.
func (r *Repository) Upsert(symbol, name string) error {
	_, err := r.db.Exec(`
		INSERT INTO benchmarks (symbol, name)
		VALUES (?, ?)
		ON CONFLICT(symbol) DO UPDATE SET name = excluded.name
	`, symbol, name)
	if err != nil {
		return fmt.Errorf("upsert benchmark %s: %w", symbol, err)
	}
	return nil
}

// List returns the catalog ordered by symbol.
func (r *Repository) List() ([]Benchmark, error) {
	rows, err := r.db.Query("SELECT symbol, name, last_refreshed FROM benchmarks ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("list benchmarks: %w", err)
	}
	defer rows.Close()

	var out []Benchmark
	for rows.Next() {
		var b Benchmark
		var refreshed sql.NullString
		if err := rows.Scan(&b.Symbol, &b.Name, &refreshed); err != nil {
			return nil, fmt.Errorf("scan benchmark: %w", err)
		}
		if refreshed.Valid && refreshed.String != "" {
			if ts, err := time.Parse("2006-01-02 15:04:05", refreshed.String); err == nil {
				b.LastRefreshed = &ts
			}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MarkRefreshed stamps the symbol's refresh time.
func (r *Repository) MarkRefreshed(symbol string, at time.Time) error {
	_, err := r.db.Exec(
		"UPDATE benchmarks SET last_refreshed = ? WHERE symbol = ?",
		at.UTC().Format("2006-01-02 15:04:05"), symbol,
	)
	if err != nil {
		return fmt.Errorf("mark benchmark refreshed %s: %w", symbol, err)
	}
	return nil
}
