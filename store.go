package folio

import (
	"context"
	"time"
)

// Quote is a single observed price. Currency is the quote's native currency
// as recorded by the provider; valuation converts it on demand.
type Quote struct {
	Price    float64   `json:"price"`
	Time     time.Time `json:"time"`
	Currency Currency  `json:"currency"`
}

// QuoteStore is the read interface the valuation cache consumes. FX rates are
// stored as quotes of the base currency itself: the last FX quote for "USD"
// priced in EUR is the price of 1 USD in EUR.
type QuoteStore interface {
	// LastQuoteBefore returns the latest quote for the asset at or before t,
	// or an error wrapping ErrNotFound.
	LastQuoteBefore(ctx context.Context, assetID int64, t time.Time) (Quote, error)

	// QuotesInRange returns all quotes for the asset in [start, end),
	// ordered by time.
	QuotesInRange(ctx context.Context, assetID int64, start, end time.Time) ([]Quote, error)

	// LastFxQuoteBefore returns the latest quote of 1 unit of the given
	// currency at or before t, expressed in whatever currency it was stored
	// in, or an error wrapping ErrNotFound.
	LastFxQuoteBefore(ctx context.Context, code CurrencyCode, t time.Time) (Quote, error)

	// FxQuotesInRange returns all quotes of the given currency in
	// [start, end), ordered by time.
	FxQuotesInRange(ctx context.Context, code CurrencyCode, start, end time.Time) ([]Quote, error)
}

// QuoteWriter is implemented by stores that accept new quotes; providers and
// manual FX insertion write through it.
type QuoteWriter interface {
	InsertQuote(ctx context.Context, assetID int64, q Quote) error
	InsertFxQuote(ctx context.Context, code CurrencyCode, q Quote) error
}

// CurrencyStore hands out currency metadata. GetOrCreateCurrency assigns an
// id to codes never seen before, defaulting their rounding digits.
type CurrencyStore interface {
	AllCurrencies(ctx context.Context) ([]Currency, error)
	CurrencyByID(ctx context.Context, id int64) (Currency, error)
	GetOrCreateCurrency(ctx context.Context, code CurrencyCode) (Currency, error)
}

// TransactionStore persists ledger transactions. Implementations assign the
// id on insert; ids are immutable afterwards.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx *Transaction) (int64, error)
	AllTransactions(ctx context.Context) ([]Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
}
