package folio

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CachePolicy selects how the Market answers point-in-time lookups.
type CachePolicy int

const (
	// RangePrimed bulk-fetches a time window per asset on the first miss and
	// answers subsequent lookups from the cached window. The window only
	// grows, so repeated valuations over a widening backtest window amortize
	// to a binary search per lookup.
	RangePrimed CachePolicy = iota

	// Uncached performs a fresh last-quote-before lookup against the backing
	// store on every call.
	Uncached
)

// DefaultPrimeSpan is the window fetched around a first request for an asset
// under the RangePrimed policy.
const DefaultPrimeSpan = 365 * 24 * time.Hour

// Market answers "price of asset X in currency C at time T" against a quote
// store, never returning a quote from after T. It is safe for concurrent use;
// a single instance is meant to be shared by reference between all valuation
// callers.
type Market struct {
	store      QuoteStore
	currencies CurrencyStore
	policy     CachePolicy
	span       time.Duration

	mu       sync.RWMutex
	series   map[int64]*quoteSeries
	fxSeries map[CurrencyCode]*quoteSeries
	curCache map[CurrencyCode]Currency
	idCache  map[int64]Currency
}

// MarketOption configures a Market.
type MarketOption func(*Market)

// WithCachePolicy selects the caching policy.
func WithCachePolicy(p CachePolicy) MarketOption {
	return func(m *Market) { m.policy = p }
}

// WithPrimeSpan sets the bulk-fetch window for the RangePrimed policy.
func WithPrimeSpan(span time.Duration) MarketOption {
	return func(m *Market) { m.span = span }
}

// NewMarket returns a Market over the given stores. The default policy is
// RangePrimed with DefaultPrimeSpan.
func NewMarket(store QuoteStore, currencies CurrencyStore, opts ...MarketOption) *Market {
	m := &Market{
		store:      store,
		currencies: currencies,
		policy:     RangePrimed,
		span:       DefaultPrimeSpan,
		series:     make(map[int64]*quoteSeries),
		fxSeries:   make(map[CurrencyCode]*quoteSeries),
		curCache:   make(map[CurrencyCode]Currency),
		idCache:    make(map[int64]Currency),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// quoteSeries is the cached, time-sorted quote window of one asset. The
// window [from, to) only ever grows.
type quoteSeries struct {
	from, to time.Time
	quotes   []Quote
}

func (s *quoteSeries) covers(t time.Time) bool {
	return !s.from.IsZero() && !t.Before(s.from) && t.Before(s.to)
}

// lastBefore returns the latest cached quote at or before t.
func (s *quoteSeries) lastBefore(t time.Time) (Quote, bool) {
	i := sort.Search(len(s.quotes), func(i int) bool { return s.quotes[i].Time.After(t) })
	if i == 0 {
		return Quote{}, false
	}
	return s.quotes[i-1], true
}

// merge extends the cached window with quotes fetched for [start, end).
func (s *quoteSeries) merge(start, end time.Time, quotes []Quote) error {
	for _, q := range quotes {
		if q.Time.Before(start) || !q.Time.Before(end) {
			return fmt.Errorf("%w: store returned quote at %s outside requested range [%s, %s)",
				ErrCacheFailure, q.Time.Format(time.RFC3339), start.Format(time.RFC3339), end.Format(time.RFC3339))
		}
	}
	if s.from.IsZero() {
		s.from, s.to, s.quotes = start, end, quotes
		return nil
	}
	switch {
	case !end.After(s.from): // prepend
		s.quotes = append(quotes, s.quotes...)
		s.from = start
	case !start.Before(s.to): // append
		s.quotes = append(s.quotes, quotes...)
		s.to = end
	default:
		return fmt.Errorf("%w: merge range [%s, %s) overlaps cached window [%s, %s)",
			ErrCacheFailure, start.Format(time.RFC3339), end.Format(time.RFC3339),
			s.from.Format(time.RFC3339), s.to.Format(time.RFC3339))
	}
	if !sort.SliceIsSorted(s.quotes, func(i, j int) bool { return s.quotes[i].Time.Before(s.quotes[j].Time) }) {
		return fmt.Errorf("%w: cached quote series out of order after merge", ErrCacheFailure)
	}
	return nil
}

// fetch is the single store access shape shared by asset and fx series.
type fetcher struct {
	lastBefore func(ctx context.Context, t time.Time) (Quote, error)
	inRange    func(ctx context.Context, start, end time.Time) ([]Quote, error)
}

// lookup answers "latest quote at or before t" under the market's policy.
// The caller must not hold m.mu.
func (m *Market) lookup(ctx context.Context, s *quoteSeries, f fetcher, t time.Time) (Quote, error) {
	if m.policy == Uncached {
		return f.lastBefore(ctx, t)
	}

	m.mu.RLock()
	if s.covers(t) {
		q, ok := s.lastBefore(t)
		m.mu.RUnlock()
		if ok {
			return q, nil
		}
		// The cached window holds nothing at or before t; the answer, if
		// any, predates the window.
		return m.backfill(ctx, s, f, t)
	}
	m.mu.RUnlock()

	m.mu.Lock()
	if !s.covers(t) { // re-check, another caller may have primed meanwhile
		start, end := t.Add(-m.span), t.Add(24*time.Hour)
		if !s.from.IsZero() {
			// Grow the existing window up to its edge rather than refetch.
			if t.Before(s.from) {
				end = s.from
			} else {
				start = s.to
			}
		}
		quotes, err := f.inRange(ctx, start, end)
		if err != nil {
			m.mu.Unlock()
			return Quote{}, err
		}
		if err := s.merge(start, end, quotes); err != nil {
			m.mu.Unlock()
			return Quote{}, err
		}
	}
	q, ok := s.lastBefore(t)
	m.mu.Unlock()
	if ok {
		return q, nil
	}
	return m.backfill(ctx, s, f, t)
}

// backfill resolves a lookup whose answer predates the cached window with a
// single point query, and extends the window backwards to that quote so the
// next lookup is served from cache.
func (m *Market) backfill(ctx context.Context, s *quoteSeries, f fetcher, t time.Time) (Quote, error) {
	q, err := f.lastBefore(ctx, t)
	if err != nil {
		return Quote{}, err
	}
	m.mu.Lock()
	if !s.from.IsZero() && q.Time.Before(s.from) {
		s.quotes = append([]Quote{q}, s.quotes...)
		s.from = q.Time
	}
	m.mu.Unlock()
	return q, nil
}

func (m *Market) assetSeries(assetID int64) *quoteSeries {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[assetID]
	if !ok {
		s = &quoteSeries{}
		m.series[assetID] = s
	}
	return s
}

func (m *Market) currencySeries(code CurrencyCode) *quoteSeries {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.fxSeries[code]
	if !ok {
		s = &quoteSeries{}
		m.fxSeries[code] = s
	}
	return s
}

// PriceAt returns the latest known price of the asset at or before t,
// expressed in the given currency. It fails with ErrNotFound when no quote
// exists at or before t and with ErrConversionFailed when the quote's native
// currency cannot be converted.
func (m *Market) PriceAt(ctx context.Context, assetID int64, currency Currency, t time.Time) (float64, error) {
	f := fetcher{
		lastBefore: func(ctx context.Context, t time.Time) (Quote, error) {
			return m.store.LastQuoteBefore(ctx, assetID, t)
		},
		inRange: func(ctx context.Context, start, end time.Time) ([]Quote, error) {
			return m.store.QuotesInRange(ctx, assetID, start, end)
		},
	}
	q, err := m.lookup(ctx, m.assetSeries(assetID), f, t)
	if err != nil {
		return 0, fmt.Errorf("price of asset %d: %w", assetID, err)
	}
	if q.Currency.Equal(currency) {
		return q.Price, nil
	}
	rate, err := m.FxRate(ctx, q.Currency, currency, t)
	if err != nil {
		// A quote without an FX path to the asked currency is a conversion
		// failure, whatever the rate lookup itself reported.
		return 0, fmt.Errorf("price of asset %d: %w: %w", assetID, ErrConversionFailed, err)
	}
	return q.Price * rate, nil
}

// FxRate returns the price of 1 unit of base in quote currency at or before
// t. A pair of equal currencies converts at 1.0 without store access.
func (m *Market) FxRate(ctx context.Context, base, quote Currency, t time.Time) (float64, error) {
	if base.Equal(quote) {
		return 1.0, nil
	}
	f := fetcher{
		lastBefore: func(ctx context.Context, t time.Time) (Quote, error) {
			return m.store.LastFxQuoteBefore(ctx, base.Code, t)
		},
		inRange: func(ctx context.Context, start, end time.Time) ([]Quote, error) {
			return m.store.FxQuotesInRange(ctx, base.Code, start, end)
		},
	}
	q, err := m.lookup(ctx, m.currencySeries(base.Code), f, t)
	if err != nil {
		return 0, fmt.Errorf("fx %s/%s: %w", base, quote, err)
	}
	if !q.Currency.Equal(quote) {
		return 0, fmt.Errorf("fx %s/%s: quote stored in %s: %w", base, quote, q.Currency, ErrConversionFailed)
	}
	return q.Price, nil
}

// Currency returns the currency metadata for a code, populating the cache
// from the currency store on first reference. Unknown codes are created with
// default rounding digits.
func (m *Market) Currency(ctx context.Context, code CurrencyCode) (Currency, error) {
	m.mu.RLock()
	c, ok := m.curCache[code]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}
	c, err := m.currencies.GetOrCreateCurrency(ctx, code)
	if err != nil {
		return Currency{}, fmt.Errorf("currency %s: %w", code, err)
	}
	m.mu.Lock()
	m.curCache[code] = c
	if c.ID != nil {
		m.idCache[*c.ID] = c
	}
	m.mu.Unlock()
	return c, nil
}

// CurrencyByID returns the currency with the given persistent id, cached
// after first access.
func (m *Market) CurrencyByID(ctx context.Context, id int64) (Currency, error) {
	m.mu.RLock()
	c, ok := m.idCache[id]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}
	c, err := m.currencies.CurrencyByID(ctx, id)
	if err != nil {
		return Currency{}, err
	}
	m.mu.Lock()
	m.idCache[id] = c
	m.curCache[c.Code] = c
	m.mu.Unlock()
	return c, nil
}
