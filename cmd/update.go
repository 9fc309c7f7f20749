package cmd

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/subcommands"

	"github.com/mwestra/folio"
	"github.com/mwestra/folio/date"
	"github.com/mwestra/folio/eodhd"
)

type updateCmd struct {
	tickers stringList
	pairs   stringList
	from    string
	to      string
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "fetch daily quotes from eodhd.com into the database" }
func (*updateCmd) Usage() string {
	return `qf update -ticker <asset>:<symbol>:<currency> [-ticker ...] [-pair <base>/<quote> ...] [-s <from>] [-e <to>]

  Fetches end-of-day prices for each ticker and FX rates for each currency
  pair and stores them. The default window is the trailing month.

Usage Examples:
# Update one stock and the USD/EUR rate.
$ qf update -ticker 1:NVD.F:EUR -pair USD/EUR
`
}

func (p *updateCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&p.tickers, "ticker", "Tracked ticker as <asset_id>:<symbol>:<currency>. Repeatable.")
	f.Var(&p.pairs, "pair", "Tracked currency pair as <base>/<quote>. Repeatable.")
	f.StringVar(&p.from, "s", date.Today().Add(-30).String(), "First day to fetch (YYYY-MM-DD).")
	f.StringVar(&p.to, "e", date.Today().String(), "Last day to fetch (YYYY-MM-DD).")
}

func (p *updateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	key := apiKey()
	if key == "" {
		return fail(fmt.Errorf("no EODHD API key: pass -eodhd-api-key or set %s", eodhd.APIKeyEnv))
	}
	from, err := date.Parse(p.from)
	if err != nil {
		return fail(fmt.Errorf("from date: %w", err))
	}
	to, err := date.Parse(p.to)
	if err != nil {
		return fail(fmt.Errorf("to date: %w", err))
	}

	log := newLogger()
	db, store, err := openStore(log)
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	updater := eodhd.NewUpdater(eodhd.New(key, log), store, log)
	for _, spec := range p.tickers {
		assetID, symbol, currency, err := parseTickerSpec(spec)
		if err != nil {
			return fail(err)
		}
		updater.Track(assetID, symbol, currency)
	}
	for _, spec := range p.pairs {
		base, quote, err := parsePairSpec(spec)
		if err != nil {
			return fail(err)
		}
		updater.TrackPair(base, quote)
	}

	if err := updater.Update(ctx, from, to); err != nil {
		return fail(err)
	}
	fmt.Printf("Updated %d tickers and %d pairs over %s..%s\n", len(p.tickers), len(p.pairs), from, to)
	return subcommands.ExitSuccess
}

func parseTickerSpec(spec string) (int64, string, folio.Currency, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return 0, "", folio.Currency{}, fmt.Errorf("ticker %q: want <asset_id>:<symbol>:<currency>", spec)
	}
	assetID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", folio.Currency{}, fmt.Errorf("ticker %q: bad asset id: %w", spec, err)
	}
	currency, err := folio.ParseCurrency(parts[2])
	if err != nil {
		return 0, "", folio.Currency{}, fmt.Errorf("ticker %q: %w", spec, err)
	}
	return assetID, parts[1], currency, nil
}

func parsePairSpec(spec string) (folio.Currency, folio.Currency, error) {
	parts := strings.Split(spec, "/")
	if len(parts) != 2 {
		return folio.Currency{}, folio.Currency{}, fmt.Errorf("pair %q: want <base>/<quote>", spec)
	}
	base, err := folio.ParseCurrency(parts[0])
	if err != nil {
		return folio.Currency{}, folio.Currency{}, fmt.Errorf("pair %q: %w", spec, err)
	}
	quote, err := folio.ParseCurrency(parts[1])
	if err != nil {
		return folio.Currency{}, folio.Currency{}, fmt.Errorf("pair %q: %w", spec, err)
	}
	return base, quote, nil
}
