package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"github.com/mwestra/folio"
	"github.com/mwestra/folio/date"
)

type positionCmd struct {
	start string
	end   string
	at    string
}

func (*positionCmd) Name() string { return "position" }
func (*positionCmd) Synopsis() string {
	return "report positions, totals and P&L from the ledger"
}
func (*positionCmd) Usage() string {
	return `qf position [-s <start_date>] [-e <end_date>] [-at <valuation_date>]

  Replays the ledger over the window [start, end) and reports every position
  with its realized and unrealized P&L, valued at the valuation date (default
  today) in the base currency.
`
}

func (p *positionCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.start, "s", "", "Start of the accounting window (YYYY-MM-DD).")
	f.StringVar(&p.end, "e", "", "End of the accounting window, excluded (YYYY-MM-DD).")
	f.StringVar(&p.at, "at", date.Today().String(), "Valuation date (YYYY-MM-DD).")
}

func (p *positionCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	position, at, err := markedPosition(ctx, p.start, p.end, p.at)
	if err != nil {
		return fail(err)
	}
	printMarkdown(positionMarkdown(position, at))
	return subcommands.ExitSuccess
}

type totalsCmd struct {
	start string
	end   string
	at    string
}

func (*totalsCmd) Name() string     { return "totals" }
func (*totalsCmd) Synopsis() string { return "report portfolio totals from the ledger" }
func (*totalsCmd) Usage() string {
	return `qf totals [-s <start_date>] [-e <end_date>] [-at <valuation_date>]

  Replays the ledger over the window [start, end) and reports the aggregated
  value, realized and unrealized P&L, dividends, interest, taxes and fees.
`
}

func (c *totalsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "s", "", "Start of the accounting window (YYYY-MM-DD).")
	f.StringVar(&c.end, "e", "", "End of the accounting window, excluded (YYYY-MM-DD).")
	f.StringVar(&c.at, "at", date.Today().String(), "Valuation date (YYYY-MM-DD).")
}

func (c *totalsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	position, at, err := markedPosition(ctx, c.start, c.end, c.at)
	if err != nil {
		return fail(err)
	}
	printMarkdown(totalsMarkdown(position, at))
	return subcommands.ExitSuccess
}

// markedPosition replays the stored ledger over the requested window and
// marks every position at the valuation date's reference hour.
func markedPosition(ctx context.Context, startFlag, endFlag, atFlag string) (*folio.PortfolioPosition, date.Date, error) {
	log := newLogger()
	db, store, err := openStore(log)
	if err != nil {
		return nil, date.Date{}, err
	}
	defer db.Close()

	base, err := baseCurrency()
	if err != nil {
		return nil, date.Date{}, err
	}
	at, err := date.Parse(atFlag)
	if err != nil {
		return nil, date.Date{}, err
	}
	start, end, err := parseWindow(startFlag, endFlag)
	if err != nil {
		return nil, date.Date{}, err
	}

	txs, err := store.AllTransactions(ctx)
	if err != nil {
		return nil, date.Date{}, err
	}

	market := folio.NewMarket(store, store)
	position, err := folio.CalcPosition(ctx, base, txs, start, end, market)
	if err != nil {
		return nil, date.Date{}, err
	}
	position.AddQuote(ctx, market, at.At(folio.ReferenceHour))
	return position, at, nil
}

func positionMarkdown(p *folio.PortfolioPosition, at date.Date) string {
	base := p.BaseCurrency()
	money := func(v float64) string {
		return folio.NewCashAmount(v, base).String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Positions as of %s\n\n", at)
	b.WriteString("| Asset | Quantity | Cost | Mark | Value | Trading P&L | Dividend | Interest | Tax | Fees |\n")
	b.WriteString("|------:|---------:|-----:|-----:|------:|------------:|---------:|---------:|----:|-----:|\n")
	fmt.Fprintf(&b, "| cash | %.4f | | | %s | %s | %s | %s | %s | %s |\n",
		p.Cash.Quantity, money(p.Cash.Quantity), money(p.Cash.TradingPnL),
		money(p.Cash.Dividend), money(p.Cash.Interest), money(p.Cash.Tax), money(p.Cash.Fees))
	for _, id := range p.AssetIDs() {
		pos := p.Assets[id]
		mark := ""
		value := -pos.PurchaseValue
		if pos.LastQuote != nil {
			mark = fmt.Sprintf("%.4f", *pos.LastQuote)
			value = pos.Quantity * *pos.LastQuote
		}
		fmt.Fprintf(&b, "| %d | %.4f | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			id, pos.Quantity, money(-pos.PurchaseValue), mark, money(value),
			money(pos.TradingPnL), money(pos.Dividend), money(pos.Interest),
			money(pos.Tax), money(pos.Fees))
	}

	b.WriteString("\n## Totals\n\n")
	writeTotals(&b, p)
	return b.String()
}

func totalsMarkdown(p *folio.PortfolioPosition, at date.Date) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Totals as of %s\n\n", at)
	writeTotals(&b, p)
	return b.String()
}

func writeTotals(b *strings.Builder, p *folio.PortfolioPosition) {
	money := func(v float64) string {
		return folio.NewCashAmount(v, p.BaseCurrency()).String()
	}
	totals := p.CalcTotals()
	fmt.Fprintf(b, "- Value: %s\n", money(totals.Value))
	fmt.Fprintf(b, "- Trading P&L: %s\n", money(totals.TradingPnL))
	fmt.Fprintf(b, "- Unrealized P&L: %s\n", money(totals.UnrealizedPnL))
	fmt.Fprintf(b, "- Dividends: %s\n", money(totals.Dividend))
	fmt.Fprintf(b, "- Interest: %s\n", money(totals.Interest))
	fmt.Fprintf(b, "- Tax: %s\n", money(totals.Tax))
	fmt.Fprintf(b, "- Fees: %s\n", money(totals.Fees))
}
