package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/benchmarks"
)

// BenchmarkRefreshSchedule fires daily at 06:30, after overnight close data
// is available from the provider.
const BenchmarkRefreshSchedule = "0 30 6 * * *"

// BenchmarkRefreshJob re-fetches the benchmark catalog's price histories.
type BenchmarkRefreshJob struct {
	log     zerolog.Logger
	service *benchmarks.Service
	timeout time.Duration
}

// NewBenchmarkRefreshJob creates a new benchmark refresh job
func NewBenchmarkRefreshJob(service *benchmarks.Service, log zerolog.Logger) *BenchmarkRefreshJob {
	return &BenchmarkRefreshJob{
		log:     log.With().Str("job", "benchmark_refresh").Logger(),
		service: service,
		timeout: 10 * time.Minute,
	}
}

// Name returns the job name
func (j *BenchmarkRefreshJob) Name() string {
	return "benchmark_refresh"
}

// Run executes the refresh
func (j *BenchmarkRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	return j.service.RefreshAll(ctx)
}
