package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// Mode selects which input shape a portfolio carries. It is immutable for
// the life of the portfolio.
type Mode string

const (
	ModeTransaction Mode = "transactions"
	ModeSnapshot    Mode = "snapshot"
)

// Side is the cash/holdings effect of a ledger entry.
type Side string

const (
	SideBuy      Side = "BUY"
	SideSell     Side = "SELL"
	SideDeposit  Side = "DEPOSIT"
	SideWithdraw Side = "WITHDRAW"
)

// ParseSide normalizes a side string case-insensitively.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	case SideDeposit:
		return SideDeposit, nil
	case SideWithdraw:
		return SideWithdraw, nil
	default:
		return "", fmt.Errorf("unknown transaction side %q", s)
	}
}

// Transaction is one immutable ledger entry. For DEPOSIT/WITHDRAW the
// quantity field carries the cash amount.
type Transaction struct {
	Datetime time.Time `json:"datetime"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	Fee      float64   `json:"fee"`
	Currency string    `json:"currency,omitempty"`
	Account  string    `json:"account,omitempty"`
	Note     string    `json:"note,omitempty"`
}

// Date returns the transaction's calendar date.
func (t Transaction) Date() timeseries.Date {
	return timeseries.DateOf(t.Datetime)
}

// Position is one point-in-time holding in snapshot mode.
type Position struct {
	AsOf      timeseries.Date `json:"as_of"`
	Symbol    string          `json:"symbol"`
	Quantity  float64         `json:"quantity"`
	CostBasis float64         `json:"cost_basis"`
	Currency  string          `json:"currency,omitempty"`
	Note      string          `json:"note,omitempty"`
}

// StaleTickerAction is the user's decision for a symbol whose price history
// ends before the latest available date among portfolio symbols.
type StaleTickerAction string

const (
	ActionLiquidate StaleTickerAction = "LIQUIDATE"
	ActionFreeze    StaleTickerAction = "FREEZE"
	ActionRemove    StaleTickerAction = "REMOVE"
)

// StaleTicker describes a detected stale symbol.
type StaleTicker struct {
	Symbol      string          `json:"symbol"`
	LastDate    timeseries.Date `json:"last_date"`
	LastPrice   float64         `json:"last_price"`
	Quantity    float64         `json:"quantity"`
	MarketValue float64         `json:"market_value"`
}

// StaleTickerHandling pairs a stale symbol with the chosen action.
type StaleTickerHandling struct {
	Symbol string            `json:"symbol"`
	Action StaleTickerAction `json:"action"`
}

// LiquidationEvent records a one-shot stale-ticker liquidation applied
// during replay.
type LiquidationEvent struct {
	Date       timeseries.Date `json:"date"`
	Symbol     string          `json:"symbol"`
	Price      float64         `json:"price"`
	Quantity   float64         `json:"quantity"`
	CashAmount float64         `json:"cash_amount"`
}
