package folio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mwestra/folio/date"
)

// countingStore wraps a MemoryStore and counts store round trips.
type countingStore struct {
	*MemoryStore
	lastBefore int
	inRange    int
}

func (s *countingStore) LastQuoteBefore(ctx context.Context, assetID int64, t time.Time) (Quote, error) {
	s.lastBefore++
	return s.MemoryStore.LastQuoteBefore(ctx, assetID, t)
}

func (s *countingStore) QuotesInRange(ctx context.Context, assetID int64, start, end time.Time) ([]Quote, error) {
	s.inRange++
	return s.MemoryStore.QuotesInRange(ctx, assetID, start, end)
}

func TestPriceAtPointInTime(t *testing.T) {
	ctx := context.Background()
	eur := MustCurrency("EUR")
	store := NewMemoryStore()

	d := func(s string) date.Date { return date.MustParse(s) }
	insertQuote(t, store, 1, 10.0, d("2021-03-01"), eur)
	insertQuote(t, store, 1, 11.0, d("2021-03-02"), eur)
	insertQuote(t, store, 1, 12.0, d("2021-03-03"), eur)

	for _, policy := range []CachePolicy{RangePrimed, Uncached} {
		m := NewMarket(store, store, WithCachePolicy(policy))

		// Between two quotes the earlier one answers.
		between := d("2021-03-02").At(ReferenceHour).Add(2 * time.Hour)
		price, err := m.PriceAt(ctx, 1, eur, between)
		if err != nil {
			t.Fatalf("policy %v: %v", policy, err)
		}
		approx(t, "price between quotes", price, 11.0, 1e-9)

		// Exactly at a quote time the quote itself answers.
		price, err = m.PriceAt(ctx, 1, eur, d("2021-03-03").At(ReferenceHour))
		if err != nil {
			t.Fatalf("policy %v: %v", policy, err)
		}
		approx(t, "price at quote time", price, 12.0, 1e-9)

		// Before the first quote there is no answer.
		if _, err := m.PriceAt(ctx, 1, eur, d("2021-02-01").At(ReferenceHour)); !errors.Is(err, ErrNotFound) {
			t.Errorf("policy %v: want ErrNotFound before first quote, got %v", policy, err)
		}
	}
}

// Answers must not depend on which lookup primed the cache first.
func TestPriceAtPrimingOrder(t *testing.T) {
	ctx := context.Background()
	eur := MustCurrency("EUR")
	store := NewMemoryStore()

	d := func(s string) date.Date { return date.MustParse(s) }
	days := []struct {
		on    date.Date
		price float64
	}{
		{d("2021-01-04"), 10},
		{d("2021-02-01"), 11},
		{d("2021-06-01"), 12},
		{d("2021-12-01"), 13},
	}
	for _, q := range days {
		insertQuote(t, store, 1, q.price, q.on, eur)
	}

	asks := []date.Date{d("2021-12-15"), d("2021-01-10"), d("2021-06-15"), d("2021-02-10")}
	want := []float64{13, 10, 12, 11}

	// Prime in several different orders with a short span so windows grow.
	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 3, 0, 2}}
	for _, order := range orders {
		m := NewMarket(store, store, WithPrimeSpan(30*24*time.Hour))
		for _, i := range order {
			price, err := m.PriceAt(ctx, 1, eur, asks[i].At(ReferenceHour))
			if err != nil {
				t.Fatalf("order %v ask %d: %v", order, i, err)
			}
			approx(t, "price", price, want[i], 1e-9)
		}
		// Re-ask everything from the grown cache.
		for i := range asks {
			price, err := m.PriceAt(ctx, 1, eur, asks[i].At(ReferenceHour))
			if err != nil {
				t.Fatalf("order %v re-ask %d: %v", order, i, err)
			}
			approx(t, "re-asked price", price, want[i], 1e-9)
		}
	}
}

func TestCachePolicyStoreTraffic(t *testing.T) {
	ctx := context.Background()
	eur := MustCurrency("EUR")
	mem := NewMemoryStore()
	d := func(s string) date.Date { return date.MustParse(s) }
	insertQuote(t, mem, 1, 10.0, d("2021-03-01"), eur)
	insertQuote(t, mem, 1, 11.0, d("2021-03-05"), eur)

	store := &countingStore{MemoryStore: mem}
	m := NewMarket(store, mem)
	for i := 0; i < 5; i++ {
		if _, err := m.PriceAt(ctx, 1, eur, d("2021-03-10").At(ReferenceHour)); err != nil {
			t.Fatal(err)
		}
	}
	if store.inRange != 1 {
		t.Errorf("range-primed: %d bulk fetches for repeated lookups, want 1", store.inRange)
	}
	if store.lastBefore != 0 {
		t.Errorf("range-primed: %d point lookups, want 0", store.lastBefore)
	}

	store = &countingStore{MemoryStore: mem}
	m = NewMarket(store, mem, WithCachePolicy(Uncached))
	for i := 0; i < 5; i++ {
		if _, err := m.PriceAt(ctx, 1, eur, d("2021-03-10").At(ReferenceHour)); err != nil {
			t.Fatal(err)
		}
	}
	if store.lastBefore != 5 {
		t.Errorf("uncached: %d point lookups for 5 calls, want 5", store.lastBefore)
	}
}

// A lookup predating the primed window must find the older quote through the
// point-query backfill instead of reporting not found.
func TestPriceAtBackfill(t *testing.T) {
	ctx := context.Background()
	eur := MustCurrency("EUR")
	store := NewMemoryStore()
	d := func(s string) date.Date { return date.MustParse(s) }
	insertQuote(t, store, 1, 8.0, d("2018-05-01"), eur)
	insertQuote(t, store, 1, 10.0, d("2021-03-01"), eur)

	m := NewMarket(store, store, WithPrimeSpan(30*24*time.Hour))
	price, err := m.PriceAt(ctx, 1, eur, d("2021-03-02").At(ReferenceHour))
	if err != nil {
		t.Fatal(err)
	}
	approx(t, "recent price", price, 10.0, 1e-9)

	// Inside the primed window but before its only quote: the stale 2018
	// quote is still the right answer.
	price, err = m.PriceAt(ctx, 1, eur, d("2021-02-20").At(ReferenceHour))
	if err != nil {
		t.Fatal(err)
	}
	approx(t, "backfilled price", price, 8.0, 1e-9)
}

// badRangeStore returns quotes outside the requested range.
type badRangeStore struct{ *MemoryStore }

func (s *badRangeStore) QuotesInRange(_ context.Context, _ int64, start, _ time.Time) ([]Quote, error) {
	return []Quote{{Price: 1, Time: start.Add(-time.Hour), Currency: MustCurrency("EUR")}}, nil
}

func TestCacheRejectsMisbehavingStore(t *testing.T) {
	ctx := context.Background()
	eur := MustCurrency("EUR")
	store := &badRangeStore{NewMemoryStore()}
	m := NewMarket(store, store.MemoryStore)
	_, err := m.PriceAt(ctx, 1, eur, date.MustParse("2021-03-01").At(ReferenceHour))
	if !errors.Is(err, ErrCacheFailure) {
		t.Errorf("want ErrCacheFailure, got %v", err)
	}
}

func TestFxRate(t *testing.T) {
	ctx := context.Background()
	eur := MustCurrency("EUR")
	usd := MustCurrency("USD")
	store := NewMemoryStore()
	at := date.MustParse("2021-03-01").At(ReferenceHour)

	if err := InsertFxQuote(ctx, store, usd, eur, 0.8, at); err != nil {
		t.Fatal(err)
	}

	m := NewMarket(store, store)
	later := at.Add(48 * time.Hour)

	rate, err := m.FxRate(ctx, usd, eur, later)
	if err != nil {
		t.Fatal(err)
	}
	approx(t, "usd/eur", rate, 0.8, 1e-9)

	inverse, err := m.FxRate(ctx, eur, usd, later)
	if err != nil {
		t.Fatal(err)
	}
	approx(t, "fx round trip", rate*inverse, 1.0, 1e-9)

	same, err := m.FxRate(ctx, eur, eur, later)
	if err != nil {
		t.Fatal(err)
	}
	approx(t, "identity rate", same, 1.0, 1e-9)

	// A pair never inserted cannot be converted.
	gbp := MustCurrency("GBP")
	if _, err := m.FxRate(ctx, gbp, eur, later); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound for unknown pair, got %v", err)
	}
}

func TestPriceAtWithConversion(t *testing.T) {
	ctx := context.Background()
	eur := MustCurrency("EUR")
	usd := MustCurrency("USD")
	store := NewMemoryStore()
	d := date.MustParse("2021-03-01")

	insertQuote(t, store, 1, 100.0, d, usd)
	if err := InsertFxQuote(ctx, store, usd, eur, 0.9, d.At(ReferenceHour)); err != nil {
		t.Fatal(err)
	}

	m := NewMarket(store, store)
	price, err := m.PriceAt(ctx, 1, eur, d.At(ReferenceHour).Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	approx(t, "converted price", price, 90.0, 1e-9)

	// A quote in a currency with no FX path is a conversion failure, not a
	// missing quote.
	chf := MustCurrency("CHF")
	insertQuote(t, store, 2, 40.0, d, chf)
	if _, err := m.PriceAt(ctx, 2, eur, d.At(ReferenceHour).Add(time.Hour)); !errors.Is(err, ErrConversionFailed) {
		t.Errorf("want ErrConversionFailed without an FX path, got %v", err)
	}
}

// countingCurrencyStore wraps a MemoryStore and counts currency round trips.
type countingCurrencyStore struct {
	*MemoryStore
	getOrCreate int
	byID        int
}

func (s *countingCurrencyStore) GetOrCreateCurrency(ctx context.Context, code CurrencyCode) (Currency, error) {
	s.getOrCreate++
	return s.MemoryStore.GetOrCreateCurrency(ctx, code)
}

func (s *countingCurrencyStore) CurrencyByID(ctx context.Context, id int64) (Currency, error) {
	s.byID++
	return s.MemoryStore.CurrencyByID(ctx, id)
}

func TestMarketCurrencyCache(t *testing.T) {
	ctx := context.Background()
	store := &countingCurrencyStore{MemoryStore: NewMemoryStore()}
	m := NewMarket(store.MemoryStore, store)

	jpy, err := m.Currency(ctx, MustCurrencyCode("JPY"))
	if err != nil {
		t.Fatal(err)
	}
	if jpy.RoundingDigits != 0 {
		t.Errorf("JPY rounding digits = %d, want 0", jpy.RoundingDigits)
	}
	if jpy.ID == nil {
		t.Fatal("expected a persistent id from the store")
	}

	// The second lookup is answered from the cache, as is the id lookup for
	// a code already seen.
	if _, err := m.Currency(ctx, MustCurrencyCode("JPY")); err != nil {
		t.Fatal(err)
	}
	if store.getOrCreate != 1 {
		t.Errorf("GetOrCreateCurrency round trips = %d, want 1", store.getOrCreate)
	}
	if _, err := m.CurrencyByID(ctx, *jpy.ID); err != nil {
		t.Fatal(err)
	}
	if store.byID != 0 {
		t.Errorf("CurrencyByID round trips = %d, want 0", store.byID)
	}

	// A code unknown to the currency registry defaults to 2 digits.
	xyz, err := m.Currency(ctx, MustCurrencyCode("XYZ"))
	if err != nil {
		t.Fatal(err)
	}
	if xyz.RoundingDigits != 2 {
		t.Errorf("XYZ rounding digits = %d, want 2", xyz.RoundingDigits)
	}

	// Unknown ids hit the store and report ErrNotFound.
	if _, err := m.CurrencyByID(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound for unknown id, got %v", err)
	}
	if store.byID != 1 {
		t.Errorf("CurrencyByID round trips = %d, want 1", store.byID)
	}
}
