package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/database"
)

// HealthCheckJob runs a SQLite integrity check and logs store sizes.
// Scheduled every 6 hours; a corrupt database should surface in the logs
// long before a user hits it.
type HealthCheckJob struct {
	log zerolog.Logger
	db  *database.DB
}

// NewHealthCheckJob creates a new health check job
func NewHealthCheckJob(db *database.DB, log zerolog.Logger) *HealthCheckJob {
	return &HealthCheckJob{
		log: log.With().Str("job", "health_check").Logger(),
		db:  db,
	}
}

// Name returns the job name
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// Run executes the health check
func (j *HealthCheckJob) Run() error {
	var result string
	if err := j.db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("quick_check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database integrity check reported: %s", result)
	}

	var portfolios, records, priceRows int
	_ = j.db.QueryRow("SELECT COUNT(*) FROM portfolios").Scan(&portfolios)
	_ = j.db.QueryRow("SELECT COUNT(*) FROM portfolio_records").Scan(&records)
	_ = j.db.QueryRow("SELECT COUNT(*) FROM price_history").Scan(&priceRows)

	j.log.Info().
		Int("portfolios", portfolios).
		Int("records", records).
		Int("price_rows", priceRows).
		Msg("Database healthy")
	return nil
}
