package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/mwestra/folio"
	"github.com/mwestra/folio/date"
)

// record inserts a transaction into the ledger and reports the assigned id.
func record(ctx context.Context, tx folio.Transaction) subcommands.ExitStatus {
	log := newLogger()
	db, store, err := openStore(log)
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	id, err := store.InsertTransaction(ctx, &tx)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Recorded %s as transaction %d\n", tx, id)
	return subcommands.ExitSuccess
}

// cashFlags holds the flags shared by all recording commands.
type cashFlags struct {
	amount   float64
	currency string
	date     string
	note     string
}

func (c *cashFlags) set(f *flag.FlagSet) {
	f.Float64Var(&c.amount, "a", 0, "Amount of the cash flow (always positive).")
	f.StringVar(&c.currency, "c", "", "Currency of the cash flow. Defaults to the base currency.")
	f.StringVar(&c.date, "d", date.Today().String(), "Date of the transaction (YYYY-MM-DD).")
	f.StringVar(&c.note, "note", "", "Free-form note attached to the transaction.")
}

func (c *cashFlags) flow(sign float64) (folio.CashFlow, error) {
	if c.amount <= 0 {
		return folio.CashFlow{}, fmt.Errorf("amount must be positive, got %g", c.amount)
	}
	code := c.currency
	if code == "" {
		code = *baseFlag
	}
	currency, err := folio.ParseCurrency(code)
	if err != nil {
		return folio.CashFlow{}, err
	}
	on, err := date.Parse(c.date)
	if err != nil {
		return folio.CashFlow{}, err
	}
	return folio.NewCashFlow(sign*c.amount, currency, on), nil
}

type depositCmd struct{ cashFlags }

func (*depositCmd) Name() string     { return "deposit" }
func (*depositCmd) Synopsis() string { return "record a cash deposit" }
func (*depositCmd) Usage() string {
	return `qf deposit -a <amount> [-c <currency>] [-d <date>] [-note <note>]

  Records cash flowing into the portfolio.
`
}
func (p *depositCmd) SetFlags(f *flag.FlagSet) { p.set(f) }
func (p *depositCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cf, err := p.flow(1)
	if err != nil {
		return fail(err)
	}
	return record(ctx, folio.Transaction{Type: folio.Cash{}, CashFlow: cf, Note: p.note})
}

type withdrawCmd struct{ cashFlags }

func (*withdrawCmd) Name() string     { return "withdraw" }
func (*withdrawCmd) Synopsis() string { return "record a cash withdrawal" }
func (*withdrawCmd) Usage() string {
	return `qf withdraw -a <amount> [-c <currency>] [-d <date>] [-note <note>]

  Records cash flowing out of the portfolio.
`
}
func (p *withdrawCmd) SetFlags(f *flag.FlagSet) { p.set(f) }
func (p *withdrawCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cf, err := p.flow(-1)
	if err != nil {
		return fail(err)
	}
	return record(ctx, folio.Transaction{Type: folio.Cash{}, CashFlow: cf, Note: p.note})
}

// tradeFlags extends cashFlags with the asset and quantity of a trade.
type tradeFlags struct {
	cashFlags
	asset    int64
	quantity float64
}

func (t *tradeFlags) set(f *flag.FlagSet) {
	t.cashFlags.set(f)
	f.Int64Var(&t.asset, "asset", 0, "Asset id the trade bears on.")
	f.Float64Var(&t.quantity, "q", 0, "Number of units traded (always positive).")
}

func (t *tradeFlags) trade(deltaSign, cashSign float64) (folio.Transaction, error) {
	if t.quantity <= 0 {
		return folio.Transaction{}, fmt.Errorf("quantity must be positive, got %g", t.quantity)
	}
	cf, err := t.flow(cashSign)
	if err != nil {
		return folio.Transaction{}, err
	}
	return folio.Transaction{
		Type:     folio.Asset{AssetID: t.asset, PositionDelta: deltaSign * t.quantity},
		CashFlow: cf,
		Note:     t.note,
	}, nil
}

type buyCmd struct{ tradeFlags }

func (*buyCmd) Name() string     { return "buy" }
func (*buyCmd) Synopsis() string { return "record a purchase of an asset" }
func (*buyCmd) Usage() string {
	return `qf buy -asset <id> -q <quantity> -a <total price> [-c <currency>] [-d <date>]

  Records a buy: the quantity is added to the position and the total price
  leaves the cash balance.
`
}
func (p *buyCmd) SetFlags(f *flag.FlagSet) { p.set(f) }
func (p *buyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	tx, err := p.trade(1, -1)
	if err != nil {
		return fail(err)
	}
	return record(ctx, tx)
}

type sellCmd struct{ tradeFlags }

func (*sellCmd) Name() string     { return "sell" }
func (*sellCmd) Synopsis() string { return "record a sale of an asset" }
func (*sellCmd) Usage() string {
	return `qf sell -asset <id> -q <quantity> -a <total proceeds> [-c <currency>] [-d <date>]

  Records a sell: the quantity leaves the position and the proceeds enter
  the cash balance.
`
}
func (p *sellCmd) SetFlags(f *flag.FlagSet) { p.set(f) }
func (p *sellCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	tx, err := p.trade(-1, 1)
	if err != nil {
		return fail(err)
	}
	return record(ctx, tx)
}

type dividendCmd struct {
	cashFlags
	asset int64
}

func (*dividendCmd) Name() string     { return "dividend" }
func (*dividendCmd) Synopsis() string { return "record a dividend payment" }
func (*dividendCmd) Usage() string {
	return `qf dividend -asset <id> -a <amount> [-c <currency>] [-d <date>]

  Records dividend income attributed to an asset.
`
}
func (p *dividendCmd) SetFlags(f *flag.FlagSet) {
	p.set(f)
	f.Int64Var(&p.asset, "asset", 0, "Asset id paying the dividend.")
}
func (p *dividendCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cf, err := p.flow(1)
	if err != nil {
		return fail(err)
	}
	return record(ctx, folio.Transaction{Type: folio.Dividend{AssetID: p.asset}, CashFlow: cf, Note: p.note})
}
