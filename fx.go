package folio

import (
	"context"
	"fmt"
	"time"
)

// InsertFxQuote stores the price of 1 unit of base expressed in quote
// currency at time t, together with the inverse quote, so conversion works
// in both directions from a single insertion.
func InsertFxQuote(ctx context.Context, w QuoteWriter, base, quote Currency, rate float64, t time.Time) error {
	if rate <= 0 {
		return fmt.Errorf("fx rate %s/%s must be positive, got %g", base, quote, rate)
	}
	if err := w.InsertFxQuote(ctx, base.Code, Quote{Price: rate, Time: t, Currency: quote}); err != nil {
		return fmt.Errorf("insert fx quote %s/%s: %w", base, quote, err)
	}
	if err := w.InsertFxQuote(ctx, quote.Code, Quote{Price: 1 / rate, Time: t, Currency: base}); err != nil {
		return fmt.Errorf("insert inverse fx quote %s/%s: %w", quote, base, err)
	}
	return nil
}
