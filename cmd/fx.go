package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/mwestra/folio"
	"github.com/mwestra/folio/date"
)

type fxCmd struct {
	pair string
	rate float64
	date string
}

func (*fxCmd) Name() string     { return "fx" }
func (*fxCmd) Synopsis() string { return "record an FX rate manually" }
func (*fxCmd) Usage() string {
	return `qf fx -pair <base>/<quote> -rate <rate> [-d <date>]

  Stores the price of 1 unit of base in quote currency at the reference hour
  of the given date. The inverse rate is stored alongside.
`
}

func (p *fxCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.pair, "pair", "", "Currency pair as <base>/<quote>.")
	f.Float64Var(&p.rate, "rate", 0, "Price of 1 unit of base in quote currency.")
	f.StringVar(&p.date, "d", date.Today().String(), "Date of the rate (YYYY-MM-DD).")
}

func (p *fxCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	base, quote, err := parsePairSpec(p.pair)
	if err != nil {
		return fail(err)
	}
	on, err := date.Parse(p.date)
	if err != nil {
		return fail(err)
	}

	log := newLogger()
	db, store, err := openStore(log)
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	if err := folio.InsertFxQuote(ctx, store, base, quote, p.rate, on.At(folio.ReferenceHour)); err != nil {
		return fail(err)
	}
	fmt.Printf("Recorded %s/%s = %g on %s\n", base, quote, p.rate, on)
	return subcommands.ExitSuccess
}
