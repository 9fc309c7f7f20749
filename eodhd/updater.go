package eodhd

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mwestra/folio"
	"github.com/mwestra/folio/date"
)

// Ticker binds an asset id in the store to its EODHD ticker and the currency
// the provider quotes it in.
type Ticker struct {
	AssetID  int64
	Symbol   string
	Currency folio.Currency
}

// Pair is a currency pair tracked for FX updates.
type Pair struct {
	Base, Quote folio.Currency
}

// Updater pulls daily quotes for a set of tickers and currency pairs and
// writes them into a quote store at the end-of-day reference hour.
type Updater struct {
	client  *Client
	store   folio.QuoteWriter
	tickers []Ticker
	pairs   []Pair
	log     zerolog.Logger
}

// NewUpdater returns an Updater writing through the given store.
func NewUpdater(client *Client, store folio.QuoteWriter, log zerolog.Logger) *Updater {
	return &Updater{
		client: client,
		store:  store,
		log:    log.With().Str("component", "updater").Logger(),
	}
}

// Track adds a ticker to the update set.
func (u *Updater) Track(assetID int64, symbol string, currency folio.Currency) {
	u.tickers = append(u.tickers, Ticker{AssetID: assetID, Symbol: symbol, Currency: currency})
}

// TrackPair adds a currency pair to the update set.
func (u *Updater) TrackPair(base, quote folio.Currency) {
	u.pairs = append(u.pairs, Pair{Base: base, Quote: quote})
}

// Update fetches and stores daily quotes for every tracked ticker and pair
// over [from, to], both days included. Failures are reported per ticker; the
// rest of the update still runs.
func (u *Updater) Update(ctx context.Context, from, to date.Date) error {
	var firstErr error
	fail := func(err error) {
		u.log.Error().Err(err).Msg("update failed")
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, tk := range u.tickers {
		bars, err := u.client.DailyPrices(ctx, tk.Symbol, from, to)
		if err != nil {
			fail(err)
			continue
		}
		for _, b := range bars {
			q := folio.Quote{Price: b.Close, Time: b.Date.At(folio.ReferenceHour), Currency: tk.Currency}
			if err := u.store.InsertQuote(ctx, tk.AssetID, q); err != nil {
				fail(fmt.Errorf("store quote for %s: %w", tk.Symbol, err))
				break
			}
		}
		u.log.Info().Str("ticker", tk.Symbol).Int("quotes", len(bars)).Msg("updated")
	}

	for _, pair := range u.pairs {
		bars, err := u.client.FxDaily(ctx, pair.Base.Code, pair.Quote.Code, from, to)
		if err != nil {
			fail(err)
			continue
		}
		for _, b := range bars {
			at := b.Date.At(folio.ReferenceHour)
			if err := folio.InsertFxQuote(ctx, u.store, pair.Base, pair.Quote, b.Close, at); err != nil {
				fail(err)
				break
			}
		}
		u.log.Info().Str("base", pair.Base.String()).Str("quote", pair.Quote.String()).Int("quotes", len(bars)).Msg("fx updated")
	}
	return firstErr
}

// Schedule runs Update on the given cron spec, covering the trailing week on
// each run so weekend gaps and late corrections are picked up. The returned
// scheduler is already started; stop it with its Stop method.
func (u *Updater) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		today := date.Today()
		if err := u.Update(ctx, today.Add(-7), today); err != nil {
			u.log.Error().Err(err).Msg("scheduled update failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	u.log.Info().Str("spec", spec).Msg("update schedule started")
	return c, nil
}
