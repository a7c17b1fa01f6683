// Package yahoo is a minimal Yahoo Finance client covering the two surfaces
// the valuation service needs: daily price history via the chart API and
// symbol search for resolution.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

// Client talks to the Yahoo Finance public JSON endpoints.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a Yahoo Finance client against the given base URL
// (normally https://query1.finance.yahoo.com).
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "yahoo").Logger(),
	}
}

// GetDailyHistory fetches daily OHLCV bars for the symbol over the given
// range ("1mo", "1y", "5y", "max", ...). Null rows are skipped.
func (c *Client) GetDailyHistory(ctx context.Context, symbol, period string) ([]PriceBar, error) {
	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("range", period)
	params.Add("events", "div,splits")

	reqURL := c.baseURL + "/v8/finance/chart/" + url.QueryEscape(symbol) + "?" + params.Encode()

	var result chartResponse
	if err := c.getJSON(ctx, reqURL, &result); err != nil {
		return nil, fmt.Errorf("fetch chart for %s: %w", symbol, err)
	}
	if result.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error for %s: %s (%s)",
			symbol, result.Chart.Error.Description, result.Chart.Error.Code)
	}
	if len(result.Chart.Result) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No chart data returned")
		return nil, nil
	}

	chart := result.Chart.Result[0]
	if len(chart.Indicators.Quote) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No quote data in chart response")
		return nil, nil
	}
	quote := chart.Indicators.Quote[0]

	var adjClose []float64
	if len(chart.Indicators.AdjClose) > 0 {
		adjClose = chart.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]PriceBar, 0, len(chart.Timestamp))
	for i, ts := range chart.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == 0 {
			continue
		}

		adj := quote.Close[i]
		if i < len(adjClose) && adjClose[i] != 0 {
			adj = adjClose[i]
		}
		volume := int64(0)
		if i < len(quote.Volume) {
			volume = quote.Volume[i]
		}

		bars = append(bars, PriceBar{
			Date:     time.Unix(ts, 0).UTC(),
			Open:     at(quote.Open, i),
			High:     at(quote.High, i),
			Low:      at(quote.Low, i),
			Close:    quote.Close[i],
			Volume:   volume,
			AdjClose: adj,
		})
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("period", period).
		Int("bars", len(bars)).
		Msg("Fetched daily history")

	return bars, nil
}

// GetAssetProfile fetches descriptive fields for one symbol from the chart
// metadata. Sector and industry come from the search endpoint when present.
func (c *Client) GetAssetProfile(ctx context.Context, symbol string) (*AssetProfile, error) {
	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("range", "5d")

	reqURL := c.baseURL + "/v8/finance/chart/" + url.QueryEscape(symbol) + "?" + params.Encode()

	var result chartResponse
	if err := c.getJSON(ctx, reqURL, &result); err != nil {
		return nil, fmt.Errorf("fetch profile for %s: %w", symbol, err)
	}
	if result.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error for %s: %s (%s)",
			symbol, result.Chart.Error.Description, result.Chart.Error.Code)
	}
	if len(result.Chart.Result) == 0 {
		return nil, fmt.Errorf("no profile data returned for %s", symbol)
	}

	meta := result.Chart.Result[0].Meta
	profile := &AssetProfile{
		Symbol:    meta.Symbol,
		Name:      meta.LongName,
		QuoteType: meta.InstrumentType,
		Currency:  meta.Currency,
		Exchange:  meta.ExchangeName,
		Price:     meta.RegularMarketPrice,
	}
	if profile.Name == "" {
		profile.Name = meta.ShortName
	}

	if matches, err := c.Search(ctx, symbol); err == nil {
		for _, m := range matches {
			if m.Symbol == profile.Symbol {
				profile.Sector = m.Sector
				profile.Industry = m.Industry
				break
			}
		}
	}

	return profile, nil
}

// Search looks up symbols by free-text query.
func (c *Client) Search(ctx context.Context, query string) ([]AssetProfile, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("quotesCount", "10")
	params.Add("newsCount", "0")

	reqURL := c.baseURL + "/v1/finance/search?" + params.Encode()

	var result searchResponse
	if err := c.getJSON(ctx, reqURL, &result); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	matches := make([]AssetProfile, 0, len(result.Quotes))
	for _, q := range result.Quotes {
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		matches = append(matches, AssetProfile{
			Symbol:    q.Symbol,
			Name:      name,
			QuoteType: q.QuoteType,
			Exchange:  q.Exchange,
			Sector:    q.Sector,
			Industry:  q.Industry,
		})
	}
	return matches, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}
