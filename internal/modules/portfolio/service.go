package portfolio

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/bonds"
	"github.com/quantfolio/quantfolio/internal/modules/engine"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// Inputs is everything the valuation engine needs for one portfolio,
// already converted to typed domain values.
type Inputs struct {
	Portfolio     *Portfolio
	Transactions  []engine.Transaction
	Positions     []engine.Position
	Bonds         []*bonds.Position
	StaleHandling []engine.StaleTickerHandling
}

// Symbols returns the distinct equity tickers the inputs reference, in
// first-seen order.
func (in *Inputs) Symbols() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(symbol string) {
		if symbol == "" || seen[symbol] {
			return
		}
		seen[symbol] = true
		out = append(out, symbol)
	}
	for _, t := range in.Transactions {
		if t.Side == engine.SideBuy || t.Side == engine.SideSell {
			add(t.Symbol)
		}
	}
	for _, p := range in.Positions {
		add(p.Symbol)
	}
	return out
}

// Service validates portfolio writes and assembles engine inputs.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a portfolio service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "portfolio").Logger(),
	}
}

// Create validates and stores a new portfolio. Mode defaults to transaction,
// base currency to USD.
func (s *Service) Create(p *Portfolio) error {
	if p.Name == "" {
		return fmt.Errorf("portfolio needs a name")
	}
	if p.Mode == "" {
		p.Mode = engine.ModeTransaction
	}
	if p.Mode != engine.ModeTransaction && p.Mode != engine.ModeSnapshot {
		return fmt.Errorf("unknown portfolio mode %q", p.Mode)
	}
	if p.BaseCurrency == "" {
		p.BaseCurrency = "USD"
	}

	if err := s.repo.Create(p); err != nil {
		return err
	}
	s.log.Info().Str("portfolio_id", p.ID).Str("mode", string(p.Mode)).Msg("Portfolio created")
	return nil
}

// Get returns a portfolio, or nil when it does not exist.
func (s *Service) Get(id string) (*Portfolio, error) {
	return s.repo.Get(id)
}

// List returns all portfolios.
func (s *Service) List() ([]Portfolio, error) {
	return s.repo.List()
}

// Update applies header changes. Mode cannot change after creation.
func (s *Service) Update(p *Portfolio) error {
	existing, err := s.repo.Get(p.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("portfolio %s not found", p.ID)
	}
	if p.Mode != "" && p.Mode != existing.Mode {
		return fmt.Errorf("portfolio mode is immutable")
	}
	if p.Name == "" {
		p.Name = existing.Name
	}
	if p.BaseCurrency == "" {
		p.BaseCurrency = existing.BaseCurrency
	}
	return s.repo.Update(p)
}

// Delete removes a portfolio and everything hanging off it.
func (s *Service) Delete(id string) error {
	return s.repo.Delete(id)
}

// AddRecords validates records against the portfolio's mode and appends them
// to the ledger.
func (s *Service) AddRecords(portfolioID string, records []Record) error {
	p, err := s.repo.Get(portfolioID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("portfolio %s not found", portfolioID)
	}

	for i, rec := range records {
		if err := rec.Validate(p.Mode); err != nil {
			return fmt.Errorf("record %d: %w", i+1, err)
		}
	}
	if err := s.repo.AddRecords(portfolioID, records); err != nil {
		return err
	}

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Int("count", len(records)).
		Msg("Records added")
	return nil
}

// ReplaceRecords clears the ledger and uploads a fresh set.
func (s *Service) ReplaceRecords(portfolioID string, records []Record) error {
	if err := s.repo.DeleteRecords(portfolioID); err != nil {
		return err
	}
	return s.AddRecords(portfolioID, records)
}

// Records returns the ledger ordered by date.
func (s *Service) Records(portfolioID string) ([]Record, error) {
	return s.repo.Records(portfolioID)
}

// AddBond validates and stores a bond position.
func (s *Service) AddBond(portfolioID string, b *bonds.Position, priceOverride *float64) error {
	p, err := s.repo.Get(portfolioID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("portfolio %s not found", portfolioID)
	}

	if b.Name == "" {
		return fmt.Errorf("bond needs a name")
	}
	if b.FaceValue <= 0 || b.PurchaseQuantity <= 0 {
		return fmt.Errorf("bond needs positive face value and quantity")
	}
	switch b.PaymentFrequency {
	case bonds.ZeroCoupon, bonds.Annual, bonds.SemiAnnual, bonds.Quarterly, bonds.Monthly:
	default:
		return fmt.Errorf("unsupported payment frequency %d", b.PaymentFrequency)
	}
	if !b.MaturityDate.After(b.PurchaseDate) {
		return fmt.Errorf("maturity must be after purchase")
	}
	b.PortfolioID = portfolioID

	return s.repo.AddBond(b, priceOverride)
}

// Bonds returns a portfolio's bond positions.
func (s *Service) Bonds(portfolioID string) ([]*bonds.Position, error) {
	return s.repo.Bonds(portfolioID)
}

// DeleteBond removes one bond position.
func (s *Service) DeleteBond(portfolioID, bondID string) error {
	return s.repo.DeleteBond(portfolioID, bondID)
}

// StalePolicies returns stored stale-ticker decisions.
func (s *Service) StalePolicies(portfolioID string) ([]engine.StaleTickerHandling, error) {
	return s.repo.StalePolicies(portfolioID)
}

// SetStalePolicies validates and stores stale-ticker decisions.
func (s *Service) SetStalePolicies(portfolioID string, handling []engine.StaleTickerHandling) error {
	for _, h := range handling {
		switch h.Action {
		case engine.ActionLiquidate, engine.ActionFreeze, engine.ActionRemove:
		default:
			return fmt.Errorf("unknown stale-ticker action %q for %s", h.Action, h.Symbol)
		}
		if h.Symbol == "" {
			return fmt.Errorf("stale-ticker policy is missing a symbol")
		}
	}
	return s.repo.SetStalePolicies(portfolioID, handling)
}

// Inputs loads a portfolio with its ledger, bonds and stale policies and
// converts the records into the engine's typed inputs.
func (s *Service) Inputs(portfolioID string) (*Inputs, error) {
	p, err := s.repo.Get(portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("portfolio %s not found", portfolioID)
	}

	records, err := s.repo.Records(portfolioID)
	if err != nil {
		return nil, err
	}
	bondPositions, err := s.repo.Bonds(portfolioID)
	if err != nil {
		return nil, err
	}
	handling, err := s.repo.StalePolicies(portfolioID)
	if err != nil {
		return nil, err
	}

	in := &Inputs{
		Portfolio:     p,
		Bonds:         bondPositions,
		StaleHandling: handling,
	}
	for _, rec := range records {
		switch p.Mode {
		case engine.ModeSnapshot:
			in.Positions = append(in.Positions, engine.Position{
				AsOf:      timeseries.DateOf(rec.Date),
				Symbol:    rec.Ticker,
				Quantity:  rec.Quantity,
				CostBasis: rec.Price,
			})
		case engine.ModeTransaction:
			side, err := engine.ParseSide(rec.Type)
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", rec.ID, err)
			}
			in.Transactions = append(in.Transactions, engine.Transaction{
				Datetime: rec.Date,
				Symbol:   rec.Ticker,
				Side:     side,
				Quantity: rec.Quantity,
				Price:    rec.Price,
				Fee:      rec.Fee,
			})
		}
	}
	return in, nil
}
