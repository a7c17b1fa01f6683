// Package universe resolves user-supplied tickers to Yahoo Finance symbols
// and caches descriptive asset profiles for grouping.
package universe

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/clients/yahoo"
)

// exchange-suffix pattern: broker-style tickers end with .XX or .XXX
var exchangeSuffixPattern = regexp.MustCompile(`\.[A-Z]{2,3}$`)

// Broker exchange suffixes that Yahoo spells differently.
var suffixOverrides = map[string]string{
	".US": "",    // US listings carry no suffix on Yahoo
	".GR": ".AT", // Athens
	".JP": ".T",  // Tokyo
	".UK": ".L",  // London
}

// NormalizeSymbol converts a broker-style ticker to the Yahoo spelling.
// Symbols without a recognized exchange suffix pass through uppercased.
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !exchangeSuffixPattern.MatchString(symbol) {
		return symbol
	}
	dot := strings.LastIndex(symbol, ".")
	if replacement, ok := suffixOverrides[symbol[dot:]]; ok {
		return symbol[:dot] + replacement
	}
	return symbol
}

// Resolver maps tickers to provider symbols and memoizes asset profiles.
type Resolver struct {
	client *yahoo.Client
	log    zerolog.Logger

	mu       sync.RWMutex
	profiles map[string]*yahoo.AssetProfile
}

// NewResolver creates a symbol resolver.
func NewResolver(client *yahoo.Client, log zerolog.Logger) *Resolver {
	return &Resolver{
		client:   client,
		log:      log.With().Str("component", "universe").Logger(),
		profiles: make(map[string]*yahoo.AssetProfile),
	}
}

// Resolve normalizes one ticker.
func (r *Resolver) Resolve(symbol string) string {
	return NormalizeSymbol(symbol)
}

// ResolveAll normalizes a ticker set, dropping empties and duplicates while
// keeping first-seen order.
func (r *Resolver) ResolveAll(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		resolved := NormalizeSymbol(symbol)
		if resolved == "" || seen[resolved] {
			continue
		}
		seen[resolved] = true
		out = append(out, resolved)
	}
	return out
}

// Profile fetches (and memoizes) the asset profile for a resolved symbol.
// A failed lookup is cached as absent so repeated requests stay cheap.
func (r *Resolver) Profile(ctx context.Context, symbol string) *yahoo.AssetProfile {
	symbol = NormalizeSymbol(symbol)

	r.mu.RLock()
	profile, ok := r.profiles[symbol]
	r.mu.RUnlock()
	if ok {
		return profile
	}

	profile, err := r.client.GetAssetProfile(ctx, symbol)
	if err != nil {
		r.log.Warn().Err(err).Str("symbol", symbol).Msg("Profile lookup failed")
		profile = nil
	}

	r.mu.Lock()
	r.profiles[symbol] = profile
	r.mu.Unlock()
	return profile
}

// GroupMaps builds sector and industry maps for the symbols whose profiles
// resolve. Symbols without profile data are left out; the aggregator groups
// them under "Unknown".
func (r *Resolver) GroupMaps(ctx context.Context, symbols []string) (sectors, industries map[string]string) {
	sectors = make(map[string]string)
	industries = make(map[string]string)
	for _, symbol := range symbols {
		profile := r.Profile(ctx, symbol)
		if profile == nil {
			continue
		}
		if profile.Sector != "" {
			sectors[symbol] = profile.Sector
		}
		if profile.Industry != "" {
			industries[symbol] = profile.Industry
		}
	}
	return sectors, industries
}
