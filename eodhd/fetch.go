package eodhd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mwestra/folio"
	"github.com/mwestra/folio/date"
)

// EODPrice is one daily bar as returned by the /eod endpoint. Close is the
// split-adjusted close.
type EODPrice struct {
	Date  date.Date `json:"date"`
	Close float64   `json:"adjusted_close"`
	Open  float64   `json:"open"`
}

// DailyPrices returns the daily bars for an EODHD ticker (format
// "SYMBOL.EXCHANGE") over [from, to], both days included.
func (c *Client) DailyPrices(ctx context.Context, ticker string, from, to date.Date) ([]EODPrice, error) {
	addr := fmt.Sprintf("%s/eod/%s?fmt=json&api_token=%s&from=%s&to=%s",
		c.baseURL, url.PathEscape(ticker), c.apiKey, from, to)
	content := make([]EODPrice, 0)
	if err := c.getJSON(ctx, addr, &content); err != nil {
		return nil, fmt.Errorf("eodhd daily %s: %w", ticker, err)
	}
	return content, nil
}

// FxDaily returns daily FX bars for a currency pair. The forex close values
// of the provider are unreliable and usually equal the open; the open of the
// next day is closer to the truth, so each day is assigned the following
// day's open.
func (c *Client) FxDaily(ctx context.Context, base, quote folio.CurrencyCode, from, to date.Date) ([]EODPrice, error) {
	ticker := fmt.Sprintf("%s%s.FOREX", base, quote)
	// Fetch one extra day so the last requested day still gets a value.
	bars, err := c.DailyPrices(ctx, ticker, from, to.Add(1))
	if err != nil {
		return nil, err
	}
	out := make([]EODPrice, 0, len(bars))
	for _, b := range bars {
		shifted := b.Date.Add(-1)
		if shifted.Before(from) || to.Before(shifted) {
			continue
		}
		out = append(out, EODPrice{Date: shifted, Close: b.Open, Open: b.Open})
	}
	return out, nil
}

// SearchResult is one match of the /search endpoint.
type SearchResult struct {
	Code     string  `json:"Code"`
	Exchange string  `json:"Exchange"`
	Name     string  `json:"Name"`
	Currency string  `json:"Currency"`
	ISIN     string  `json:"ISIN"`
	Close    float64 `json:"previousClose"`
}

// Search queries the provider's symbol search, typically by ISIN or name.
// The EODHD ticker of a result is Code + "." + Exchange.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	addr := fmt.Sprintf("%s/search/%s?fmt=json&api_token=%s", c.baseURL, url.PathEscape(query), c.apiKey)
	content := make([]SearchResult, 0)
	if err := c.getJSON(ctx, addr, &content); err != nil {
		return nil, fmt.Errorf("eodhd search %q: %w", query, err)
	}
	return content, nil
}
