package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/bonds"
	"github.com/quantfolio/quantfolio/internal/modules/engine"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

const (
	timestampFormat = "2006-01-02 15:04:05"
	dateFormat      = "2006-01-02"
)

// Repository persists portfolios, ledger records, bond positions and
// stale-ticker policies.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a portfolio repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Create inserts a portfolio, assigning an ID and timestamps.
func (r *Repository) Create(p *Portfolio) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	var deposit any
	if p.InitialDeposit != nil {
		deposit = *p.InitialDeposit
	}

	_, err := r.db.Exec(`
		INSERT INTO portfolios (id, name, mode, base_currency, initial_deposit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, string(p.Mode), p.BaseCurrency, deposit,
		now.Format(timestampFormat), now.Format(timestampFormat))
	if err != nil {
		return fmt.Errorf("create portfolio: %w", err)
	}
	return nil
}

// Get returns a portfolio by ID, or nil when it does not exist.
func (r *Repository) Get(id string) (*Portfolio, error) {
	row := r.db.QueryRow(`
		SELECT id, name, mode, base_currency, initial_deposit, created_at, updated_at
		FROM portfolios WHERE id = ?
	`, id)

	p, err := scanPortfolio(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get portfolio %s: %w", id, err)
	}
	return p, nil
}

// List returns all portfolios, newest first.
func (r *Repository) List() ([]Portfolio, error) {
	rows, err := r.db.Query(`
		SELECT id, name, mode, base_currency, initial_deposit, created_at, updated_at
		FROM portfolios ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	defer rows.Close()

	var out []Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("scan portfolio: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Update renames a portfolio and/or changes its base currency and initial
// deposit. Mode is immutable.
func (r *Repository) Update(p *Portfolio) error {
	var deposit any
	if p.InitialDeposit != nil {
		deposit = *p.InitialDeposit
	}
	p.UpdatedAt = time.Now().UTC()

	res, err := r.db.Exec(`
		UPDATE portfolios SET name = ?, base_currency = ?, initial_deposit = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.BaseCurrency, deposit, p.UpdatedAt.Format(timestampFormat), p.ID)
	if err != nil {
		return fmt.Errorf("update portfolio %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("portfolio %s not found", p.ID)
	}
	return nil
}

// Delete removes a portfolio. Records, bonds and policies cascade.
func (r *Repository) Delete(id string) error {
	if _, err := r.db.Exec("DELETE FROM portfolios WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete portfolio %s: %w", id, err)
	}
	return nil
}

// AddRecords inserts ledger records in one transaction.
func (r *Repository) AddRecords(portfolioID string, records []Record) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin record insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO portfolio_records (id, portfolio_id, record_date, record_type, ticker, quantity, price, fee)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.PortfolioID = portfolioID
		_, err := stmt.Exec(rec.ID, portfolioID,
			rec.Date.UTC().Format(timestampFormat), rec.Type, rec.Ticker,
			rec.Quantity, rec.Price, rec.Fee)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}
	return tx.Commit()
}

// Records returns a portfolio's ledger ordered by date.
func (r *Repository) Records(portfolioID string) ([]Record, error) {
	rows, err := r.db.Query(`
		SELECT id, portfolio_id, record_date, record_type, ticker, quantity, price, fee
		FROM portfolio_records
		WHERE portfolio_id = ?
		ORDER BY record_date, id
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var when, ticker sql.NullString
		var quantity, price, fee sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.PortfolioID, &when, &rec.Type, &ticker, &quantity, &price, &fee); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Date = parseTimestamp(when.String)
		rec.Ticker = ticker.String
		rec.Quantity = quantity.Float64
		rec.Price = price.Float64
		rec.Fee = fee.Float64
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteRecords clears a portfolio's ledger.
func (r *Repository) DeleteRecords(portfolioID string) error {
	if _, err := r.db.Exec("DELETE FROM portfolio_records WHERE portfolio_id = ?", portfolioID); err != nil {
		return fmt.Errorf("delete records for %s: %w", portfolioID, err)
	}
	return nil
}

// AddBond inserts a bond position.
func (r *Repository) AddBond(b *bonds.Position, priceOverride *float64) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = time.Now().UTC()

	var current, override any
	if b.CurrentPrice != nil {
		current = *b.CurrentPrice
	}
	if priceOverride != nil {
		override = *priceOverride
	}

	_, err := r.db.Exec(`
		INSERT INTO bond_positions (id, portfolio_id, name, face_value, quantity, coupon_rate,
			frequency, purchase_date, maturity_date, purchase_price, current_price, price_override, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.PortfolioID, b.Name, b.FaceValue, b.PurchaseQuantity, b.CouponRate,
		int(b.PaymentFrequency), b.PurchaseDate.String(), b.MaturityDate.String(),
		b.PurchasePrice, current, override, b.CreatedAt.Format(timestampFormat))
	if err != nil {
		return fmt.Errorf("insert bond: %w", err)
	}
	return nil
}

// Bonds returns a portfolio's bond positions. A stored price override wins
// over the quoted current price, so the valuer only ever sees one of them.
func (r *Repository) Bonds(portfolioID string) ([]*bonds.Position, error) {
	rows, err := r.db.Query(`
		SELECT id, portfolio_id, name, face_value, quantity, coupon_rate,
			frequency, purchase_date, maturity_date, purchase_price, current_price, price_override, created_at
		FROM bond_positions
		WHERE portfolio_id = ?
		ORDER BY maturity_date, id
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("list bonds: %w", err)
	}
	defer rows.Close()

	var out []*bonds.Position
	for rows.Next() {
		var b bonds.Position
		var frequency int
		var purchase, maturity, created string
		var current, override sql.NullFloat64
		if err := rows.Scan(&b.ID, &b.PortfolioID, &b.Name, &b.FaceValue, &b.PurchaseQuantity,
			&b.CouponRate, &frequency, &purchase, &maturity, &b.PurchasePrice,
			&current, &override, &created); err != nil {
			return nil, fmt.Errorf("scan bond: %w", err)
		}
		b.PaymentFrequency = bonds.PaymentFrequency(frequency)
		if b.PurchaseDate, err = timeseries.ParseDate(purchase); err != nil {
			return nil, fmt.Errorf("bond %s purchase date: %w", b.ID, err)
		}
		if b.MaturityDate, err = timeseries.ParseDate(maturity); err != nil {
			return nil, fmt.Errorf("bond %s maturity date: %w", b.ID, err)
		}
		b.CreatedAt = parseTimestamp(created)
		switch {
		case override.Valid:
			b.CurrentPrice = &override.Float64
		case current.Valid:
			b.CurrentPrice = &current.Float64
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// DeleteBond removes one bond position.
func (r *Repository) DeleteBond(portfolioID, bondID string) error {
	res, err := r.db.Exec(
		"DELETE FROM bond_positions WHERE portfolio_id = ? AND id = ?",
		portfolioID, bondID,
	)
	if err != nil {
		return fmt.Errorf("delete bond %s: %w", bondID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bond %s not found", bondID)
	}
	return nil
}

// StalePolicies returns the stored stale-ticker decisions for a portfolio.
func (r *Repository) StalePolicies(portfolioID string) ([]engine.StaleTickerHandling, error) {
	rows, err := r.db.Query(
		"SELECT ticker, action FROM stale_ticker_policies WHERE portfolio_id = ? ORDER BY ticker",
		portfolioID,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale policies: %w", err)
	}
	defer rows.Close()

	var out []engine.StaleTickerHandling
	for rows.Next() {
		var h engine.StaleTickerHandling
		var action string
		if err := rows.Scan(&h.Symbol, &action); err != nil {
			return nil, fmt.Errorf("scan stale policy: %w", err)
		}
		h.Action = engine.StaleTickerAction(action)
		out = append(out, h)
	}
	return out, rows.Err()
}

// SetStalePolicies upserts stale-ticker decisions.
func (r *Repository) SetStalePolicies(portfolioID string, handling []engine.StaleTickerHandling) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin policy upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO stale_ticker_policies (portfolio_id, ticker, action)
		VALUES (?, ?, ?)
		ON CONFLICT(portfolio_id, ticker) DO UPDATE SET action = excluded.action
	`)
	if err != nil {
		return fmt.Errorf("prepare policy upsert: %w", err)
	}
	defer stmt.Close()

	for _, h := range handling {
		if _, err := stmt.Exec(portfolioID, h.Symbol, string(h.Action)); err != nil {
			return fmt.Errorf("upsert policy %s: %w", h.Symbol, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPortfolio(row rowScanner) (*Portfolio, error) {
	var p Portfolio
	var mode, created, updated string
	var deposit sql.NullFloat64
	if err := row.Scan(&p.ID, &p.Name, &mode, &p.BaseCurrency, &deposit, &created, &updated); err != nil {
		return nil, err
	}
	p.Mode = engine.Mode(mode)
	if deposit.Valid {
		p.InitialDeposit = &deposit.Float64
	}
	p.CreatedAt = parseTimestamp(created)
	p.UpdatedAt = parseTimestamp(updated)
	return &p, nil
}

// parseTimestamp tolerates both our own format and SQLite's
// CURRENT_TIMESTAMP default, which happen to match.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(timestampFormat, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(dateFormat, s); err == nil {
		return t
	}
	return time.Time{}
}
