package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/quantfolio/quantfolio/internal/clients/yahoo"
	"github.com/quantfolio/quantfolio/internal/events"
	"github.com/quantfolio/quantfolio/internal/modules/benchmarks"
	"github.com/quantfolio/quantfolio/internal/modules/portfolio"
	"github.com/quantfolio/quantfolio/internal/modules/prices"
	"github.com/quantfolio/quantfolio/internal/modules/universe"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE portfolios (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'transactions',
			base_currency TEXT NOT NULL DEFAULT 'USD',
			initial_deposit REAL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE portfolio_records (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT NOT NULL,
			record_date TIMESTAMP NOT NULL,
			record_type TEXT NOT NULL,
			ticker TEXT,
			quantity REAL,
			price REAL,
			fee REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE bond_positions (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT NOT NULL,
			name TEXT NOT NULL,
			face_value REAL NOT NULL,
			quantity REAL NOT NULL,
			coupon_rate REAL NOT NULL,
			frequency INTEGER NOT NULL DEFAULT 2,
			purchase_date DATE NOT NULL,
			maturity_date DATE NOT NULL,
			purchase_price REAL NOT NULL,
			current_price REAL,
			price_override REAL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE stale_ticker_policies (
			portfolio_id TEXT NOT NULL,
			ticker TEXT NOT NULL,
			action TEXT NOT NULL,
			PRIMARY KEY (portfolio_id, ticker)
		)`,
		`CREATE TABLE price_history (
			symbol TEXT NOT NULL,
			price_date DATE NOT NULL,
			close REAL NOT NULL,
			fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (symbol, price_date)
		)`,
		`CREATE TABLE benchmarks (
			symbol TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			last_refreshed TIMESTAMP
		)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

// chartJSON fabricates a chart response with linear closes on consecutive
// days starting 2024-01-02.
func chartJSON(symbol string, n int, start float64) string {
	first := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	var ts, cl []string
	for i := 0; i < n; i++ {
		ts = append(ts, fmt.Sprintf("%d", first.AddDate(0, 0, i).Unix()))
		cl = append(cl, fmt.Sprintf("%g", start+float64(i)))
	}
	return fmt.Sprintf(`{"chart":{"result":[{
		"meta":{"symbol":%q,"currency":"USD"},
		"timestamp":[%s],
		"indicators":{"quote":[{"close":[%s],"open":[],"high":[],"low":[],"volume":[]}]}
	}],"error":null}}`, symbol, strings.Join(ts, ","), strings.Join(cl, ","))
}

func setupServices(t *testing.T) (*Service, *portfolio.Service) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "chart") {
			http.Error(w, "no profile data", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, chartJSON("ACME", 60, 100))
	}))
	t.Cleanup(srv.Close)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	db := setupTestDB(t)

	client := yahoo.NewClient(srv.URL, log)
	priceService := prices.NewService(prices.NewRepository(db, log), client, time.Hour, log)
	benchmarkService, err := benchmarks.NewService(benchmarks.NewRepository(db, log), priceService, nil, log)
	require.NoError(t, err)

	portfolioService := portfolio.NewService(portfolio.NewRepository(db, log), log)
	analysisService := NewService(
		portfolioService,
		priceService,
		benchmarkService,
		universe.NewResolver(client, log),
		events.NewManager(log),
		0.02,
		log,
	)
	return analysisService, portfolioService
}

func TestTechnicalsPerHeldSymbol(t *testing.T) {
	svc, portfolios := setupServices(t)

	p := &portfolio.Portfolio{Name: "Tech"}
	require.NoError(t, portfolios.Create(p))

	day := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, portfolios.AddRecords(p.ID, []portfolio.Record{
		{Date: day, Type: "DEPOSIT", Quantity: 10000},
		{Date: day.Add(time.Hour), Type: "BUY", Ticker: "ACME", Quantity: 10, Price: 100},
	}))

	out, err := svc.Technicals(context.Background(), p.ID)
	require.NoError(t, err)
	require.Contains(t, out, "ACME")

	snap := out["ACME"]
	// 60 linear closes 100..159: the 20-day mean is fully determined.
	assert.InDelta(t, 149.5, snap.SMA20, 1e-9)
	assert.InDelta(t, 100.0, snap.RSI, 1e-9)
	assert.Equal(t, 159.0, snap.Week52High)
}

func TestTechnicalsMissingPortfolio(t *testing.T) {
	svc, _ := setupServices(t)

	_, err := svc.Technicals(context.Background(), "no-such-id")
	assert.ErrorContains(t, err, "not found")
}
