// Package portfolio persists portfolios, their ledger records and bond
// positions, and assembles the typed inputs the valuation engine consumes.
package portfolio

import (
	"fmt"
	"time"

	"github.com/quantfolio/quantfolio/internal/modules/engine"
)

// RecordTypePosition marks a snapshot-mode holdings row. Transaction-mode
// rows carry a side (BUY/SELL/DEPOSIT/WITHDRAW) instead.
const RecordTypePosition = "POSITION"

// Portfolio is the stored portfolio header. Mode is fixed at creation.
type Portfolio struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Mode           engine.Mode `json:"mode"`
	BaseCurrency   string      `json:"base_currency"`
	InitialDeposit *float64    `json:"initial_deposit,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Record is one persisted ledger row. In transaction mode Type is a
// transaction side and Date carries the full timestamp; in snapshot mode
// Type is POSITION, Date is the as-of day and Price is the cost basis.
type Record struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	Date        time.Time `json:"date"`
	Type        string    `json:"type"`
	Ticker      string    `json:"ticker,omitempty"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	Fee         float64   `json:"fee"`
}

// Validate checks a record against the portfolio's mode.
func (rec Record) Validate(mode engine.Mode) error {
	if rec.Date.IsZero() {
		return fmt.Errorf("record is missing a date")
	}

	switch mode {
	case engine.ModeSnapshot:
		if rec.Type != RecordTypePosition {
			return fmt.Errorf("snapshot portfolios accept only %s records, got %q", RecordTypePosition, rec.Type)
		}
		if rec.Ticker == "" {
			return fmt.Errorf("position record is missing a ticker")
		}
		return nil

	case engine.ModeTransaction:
		side, err := engine.ParseSide(rec.Type)
		if err != nil {
			return err
		}
		if (side == engine.SideBuy || side == engine.SideSell) && rec.Ticker == "" {
			return fmt.Errorf("%s record is missing a ticker", side)
		}
		if rec.Quantity <= 0 {
			return fmt.Errorf("%s record needs a positive quantity", side)
		}
		return nil

	default:
		return fmt.Errorf("unknown portfolio mode %q", mode)
	}
}
