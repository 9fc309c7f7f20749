package folio

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process implementation of QuoteStore, QuoteWriter,
// CurrencyStore and TransactionStore. It backs tests and small programs that
// have no use for a database file.
type MemoryStore struct {
	mu         sync.RWMutex
	quotes     map[int64][]Quote        // per asset, sorted by time
	fxQuotes   map[CurrencyCode][]Quote // per currency, sorted by time
	currencies map[CurrencyCode]Currency
	byID       map[int64]Currency
	txs        []Transaction
	nextCurID  int64
	nextTxID   int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quotes:     make(map[int64][]Quote),
		fxQuotes:   make(map[CurrencyCode][]Quote),
		currencies: make(map[CurrencyCode]Currency),
		byID:       make(map[int64]Currency),
		nextCurID:  1,
		nextTxID:   1,
	}
}

func lastBefore(quotes []Quote, t time.Time) (Quote, bool) {
	// quotes is sorted by time; find the last entry at or before t.
	i := sort.Search(len(quotes), func(i int) bool { return quotes[i].Time.After(t) })
	if i == 0 {
		return Quote{}, false
	}
	return quotes[i-1], true
}

func insertSorted(quotes []Quote, q Quote) []Quote {
	i := sort.Search(len(quotes), func(i int) bool { return quotes[i].Time.After(q.Time) })
	quotes = append(quotes, Quote{})
	copy(quotes[i+1:], quotes[i:])
	quotes[i] = q
	return quotes
}

// LastQuoteBefore implements QuoteStore.
func (s *MemoryStore) LastQuoteBefore(_ context.Context, assetID int64, t time.Time) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := lastBefore(s.quotes[assetID], t)
	if !ok {
		return Quote{}, fmt.Errorf("%w: asset %d at or before %s", ErrNotFound, assetID, t.Format(time.RFC3339))
	}
	return q, nil
}

// QuotesInRange implements QuoteStore.
func (s *MemoryStore) QuotesInRange(_ context.Context, assetID int64, start, end time.Time) ([]Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Quote
	for _, q := range s.quotes[assetID] {
		if q.Time.Before(start) || !q.Time.Before(end) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// LastFxQuoteBefore implements QuoteStore.
func (s *MemoryStore) LastFxQuoteBefore(_ context.Context, code CurrencyCode, t time.Time) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := lastBefore(s.fxQuotes[code], t)
	if !ok {
		return Quote{}, fmt.Errorf("%w: currency %s at or before %s", ErrNotFound, code, t.Format(time.RFC3339))
	}
	return q, nil
}

// FxQuotesInRange implements QuoteStore.
func (s *MemoryStore) FxQuotesInRange(_ context.Context, code CurrencyCode, start, end time.Time) ([]Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Quote
	for _, q := range s.fxQuotes[code] {
		if q.Time.Before(start) || !q.Time.Before(end) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// InsertQuote implements QuoteWriter.
func (s *MemoryStore) InsertQuote(_ context.Context, assetID int64, q Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[assetID] = insertSorted(s.quotes[assetID], q)
	return nil
}

// InsertFxQuote implements QuoteWriter.
func (s *MemoryStore) InsertFxQuote(_ context.Context, code CurrencyCode, q Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fxQuotes[code] = insertSorted(s.fxQuotes[code], q)
	return nil
}

// AllCurrencies implements CurrencyStore.
func (s *MemoryStore) AllCurrencies(_ context.Context) ([]Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Currency, 0, len(s.currencies))
	for _, c := range s.currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// CurrencyByID implements CurrencyStore.
func (s *MemoryStore) CurrencyByID(_ context.Context, id int64) (Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return Currency{}, fmt.Errorf("%w: currency id %d", ErrNotFound, id)
	}
	return c, nil
}

// GetOrCreateCurrency implements CurrencyStore.
func (s *MemoryStore) GetOrCreateCurrency(_ context.Context, code CurrencyCode) (Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.currencies[code]; ok {
		return c, nil
	}
	id := s.nextCurID
	s.nextCurID++
	c := NewCurrency(&id, code, -1)
	s.currencies[code] = c
	s.byID[id] = c
	return c, nil
}

// InsertTransaction implements TransactionStore.
func (s *MemoryStore) InsertTransaction(_ context.Context, tx *Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextTxID
	s.nextTxID++
	if err := tx.SetID(id); err != nil {
		return 0, err
	}
	s.txs = append(s.txs, *tx)
	return id, nil
}

// AllTransactions implements TransactionStore.
func (s *MemoryStore) AllTransactions(_ context.Context) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, len(s.txs))
	copy(out, s.txs)
	return out, nil
}

// DeleteTransaction implements TransactionStore.
func (s *MemoryStore) DeleteTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tx := range s.txs {
		if tx.ID != nil && *tx.ID == id {
			s.txs = append(s.txs[:i], s.txs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: transaction id %d", ErrNotFound, id)
}

var (
	_ QuoteStore       = (*MemoryStore)(nil)
	_ QuoteWriter      = (*MemoryStore)(nil)
	_ CurrencyStore    = (*MemoryStore)(nil)
	_ TransactionStore = (*MemoryStore)(nil)
)
