package eodhd

import (
	"context"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
)

// lastIntradayPath selects the price of the most recent intraday sample from
// the chart payload: the last [timestamp, price] pair of the series.
const lastIntradayPath = "$.series.intraday.data[-1:][1]"

// LatestIntraday returns the most recent intraday price from a chart
// endpoint serving the ls-tc.de JSON shape. addr is the full instrument URL;
// the instrument universe of that service is keyed by its own ids, not by
// EODHD tickers, so the caller supplies the URL.
func (c *Client) LatestIntraday(ctx context.Context, addr string) (float64, error) {
	var payload any
	if err := c.getJSON(ctx, addr, &payload); err != nil {
		return 0, fmt.Errorf("intraday %s: %w", addr, err)
	}
	val, err := jsonpath.Get(lastIntradayPath, payload)
	if err != nil {
		return 0, fmt.Errorf("intraday %s: path %q: %w", addr, lastIntradayPath, err)
	}
	// jsonpath may hand back a one-element list instead of the element.
	if list, ok := val.([]any); ok && len(list) > 0 {
		val = list[0]
	}
	price, ok := val.(float64)
	if !ok {
		return 0, fmt.Errorf("intraday %s: %q is not a number: %v", addr, lastIntradayPath, val)
	}
	return price, nil
}
