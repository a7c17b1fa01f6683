package portfolio

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/quantfolio/quantfolio/internal/modules/bonds"
	"github.com/quantfolio/quantfolio/internal/modules/engine"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
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
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func setupService(t *testing.T) *Service {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewService(NewRepository(setupTestDB(t), log), log)
}

func TestCreatePortfolioDefaults(t *testing.T) {
	svc := setupService(t)

	p := &Portfolio{Name: "Retirement"}
	require.NoError(t, svc.Create(p))
	assert.NotEmpty(t, p.ID)

	got, err := svc.Get(p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, engine.ModeTransaction, got.Mode)
	assert.Equal(t, "USD", got.BaseCurrency)
	assert.Nil(t, got.InitialDeposit)
}

func TestGetMissingPortfolioReturnsNil(t *testing.T) {
	svc := setupService(t)

	got, err := svc.Get("no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestModeIsImmutable(t *testing.T) {
	svc := setupService(t)

	p := &Portfolio{Name: "Snap", Mode: engine.ModeSnapshot}
	require.NoError(t, svc.Create(p))

	err := svc.Update(&Portfolio{ID: p.ID, Mode: engine.ModeTransaction})
	assert.ErrorContains(t, err, "immutable")
}

func TestRecordValidationPerMode(t *testing.T) {
	tests := []struct {
		name    string
		mode    engine.Mode
		rec     Record
		wantErr string
	}{
		{
			name: "snapshot rejects transaction rows",
			mode: engine.ModeSnapshot,
			rec:  Record{Date: time.Now(), Type: "BUY", Ticker: "AAPL", Quantity: 1},

			wantErr: "snapshot portfolios accept only POSITION",
		},
		{
			name:    "transaction rejects position rows",
			mode:    engine.ModeTransaction,
			rec:     Record{Date: time.Now(), Type: RecordTypePosition, Ticker: "AAPL", Quantity: 1},
			wantErr: "unknown transaction side",
		},
		{
			name:    "buy needs a ticker",
			mode:    engine.ModeTransaction,
			rec:     Record{Date: time.Now(), Type: "BUY", Quantity: 1},
			wantErr: "missing a ticker",
		},
		{
			name:    "deposit needs a positive quantity",
			mode:    engine.ModeTransaction,
			rec:     Record{Date: time.Now(), Type: "DEPOSIT"},
			wantErr: "positive quantity",
		},
		{
			name: "lowercase side accepted",
			mode: engine.ModeTransaction,
			rec:  Record{Date: time.Now(), Type: "buy", Ticker: "AAPL", Quantity: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestInputsTransactionMode(t *testing.T) {
	svc := setupService(t)

	p := &Portfolio{Name: "Ledger"}
	require.NoError(t, svc.Create(p))

	day1 := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	require.NoError(t, svc.AddRecords(p.ID, []Record{
		{Date: day1, Type: "DEPOSIT", Quantity: 10000},
		{Date: day1.Add(time.Hour), Type: "BUY", Ticker: "AAPL", Quantity: 10, Price: 150, Fee: 1},
		{Date: day1.Add(2 * time.Hour), Type: "BUY", Ticker: "MSFT", Quantity: 5, Price: 300},
	}))

	in, err := svc.Inputs(p.ID)
	require.NoError(t, err)

	require.Len(t, in.Transactions, 3)
	assert.Empty(t, in.Positions)
	assert.Equal(t, engine.SideDeposit, in.Transactions[0].Side)
	assert.Equal(t, 10000.0, in.Transactions[0].Quantity)
	assert.Equal(t, 1.0, in.Transactions[1].Fee)
	assert.Equal(t, []string{"AAPL", "MSFT"}, in.Symbols())
}

func TestInputsSnapshotMode(t *testing.T) {
	svc := setupService(t)

	p := &Portfolio{Name: "Snap", Mode: engine.ModeSnapshot}
	require.NoError(t, svc.Create(p))

	asOf := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.AddRecords(p.ID, []Record{
		{Date: asOf, Type: RecordTypePosition, Ticker: "VTI", Quantity: 20, Price: 210},
	}))

	in, err := svc.Inputs(p.ID)
	require.NoError(t, err)

	require.Len(t, in.Positions, 1)
	assert.Empty(t, in.Transactions)
	assert.Equal(t, timeseries.NewDate(2024, time.March, 1), in.Positions[0].AsOf)
	assert.Equal(t, 210.0, in.Positions[0].CostBasis)
}

func TestBondPriceOverrideWins(t *testing.T) {
	svc := setupService(t)

	p := &Portfolio{Name: "Bonds"}
	require.NoError(t, svc.Create(p))

	current := 101.5
	override := 99.25
	b := &bonds.Position{
		Name:             "UST 2030",
		FaceValue:        1000,
		PurchaseQuantity: 3,
		CouponRate:       4.0,
		PaymentFrequency: bonds.SemiAnnual,
		PurchaseDate:     timeseries.NewDate(2024, time.January, 15),
		MaturityDate:     timeseries.NewDate(2030, time.January, 15),
		PurchasePrice:    98.0,
		CurrentPrice:     &current,
	}
	require.NoError(t, svc.AddBond(p.ID, b, &override))

	got, err := svc.Bonds(p.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].CurrentPrice)
	assert.Equal(t, override, *got[0].CurrentPrice)
}

func TestStalePolicyUpsert(t *testing.T) {
	svc := setupService(t)

	p := &Portfolio{Name: "Stale"}
	require.NoError(t, svc.Create(p))

	require.NoError(t, svc.SetStalePolicies(p.ID, []engine.StaleTickerHandling{
		{Symbol: "DELISTED", Action: engine.ActionFreeze},
	}))
	require.NoError(t, svc.SetStalePolicies(p.ID, []engine.StaleTickerHandling{
		{Symbol: "DELISTED", Action: engine.ActionLiquidate},
	}))

	got, err := svc.StalePolicies(p.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, engine.ActionLiquidate, got[0].Action)

	err = svc.SetStalePolicies(p.ID, []engine.StaleTickerHandling{{Symbol: "X", Action: "SELL_ALL"}})
	assert.ErrorContains(t, err, "unknown stale-ticker action")
}

func TestDeleteBondNotFound(t *testing.T) {
	svc := setupService(t)

	p := &Portfolio{Name: "Empty"}
	require.NoError(t, svc.Create(p))

	err := svc.DeleteBond(p.ID, "missing")
	assert.ErrorContains(t, err, "not found")
}
