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

type backtestCmd struct {
	asset    int64
	cash     float64
	start    string
	end      string
	reinvest bool
	taxRate  float64
	feeMin   float64
	feeProp  float64
}

func (*backtestCmd) Name() string { return "backtest" }
func (*backtestCmd) Synopsis() string {
	return "simulate a single-stock strategy over historical quotes"
}
func (*backtestCmd) Usage() string {
	return `qf backtest -asset <id> -cash <amount> -s <start> -e <end> [-reinvest] [-tax-rate <r>] [-fee-min <f>] [-fee-prop <f>]

  Buys the asset with the available cash on the start date and holds it to
  the end date, using quotes from the database. With -reinvest, dividends
  recorded in the ledger for the asset are reinvested into whole shares.
`
}

func (p *backtestCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&p.asset, "asset", 0, "Asset id to simulate.")
	f.Float64Var(&p.cash, "cash", 0, "Initial cash in base currency.")
	f.StringVar(&p.start, "s", "", "Start date (YYYY-MM-DD).")
	f.StringVar(&p.end, "e", "", "End date (YYYY-MM-DD).")
	f.BoolVar(&p.reinvest, "reinvest", false, "Reinvest dividends into the stock.")
	f.Float64Var(&p.taxRate, "tax-rate", 0, "Tax rate applied to dividends.")
	f.Float64Var(&p.feeMin, "fee-min", 0, "Minimum fee per trade.")
	f.Float64Var(&p.feeProp, "fee-prop", 0, "Proportional fee per trade.")
}

func (p *backtestCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if p.asset == 0 || p.cash <= 0 {
		return fail(fmt.Errorf("both -asset and a positive -cash are required"))
	}
	start, err := date.Parse(p.start)
	if err != nil {
		return fail(fmt.Errorf("start date: %w", err))
	}
	end, err := date.Parse(p.end)
	if err != nil {
		return fail(fmt.Errorf("end date: %w", err))
	}

	log := newLogger()
	db, store, err := openStore(log)
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	base, err := baseCurrency()
	if err != nil {
		return fail(err)
	}

	market := folio.NewMarket(store, store)
	price, err := market.PriceAt(ctx, p.asset, base, start.At(folio.ReferenceHour))
	if err != nil {
		return fail(fmt.Errorf("no quote to open the position: %w", err))
	}
	costs := folio.TransactionCosts{
		Fee:     folio.TransactionFee{Min: p.feeMin, Proportional: p.feeProp},
		TaxRate: p.taxRate,
	}
	shares := float64(int64(p.cash / price))
	fee := costs.Fee.Fee(shares * price)
	for shares > 0 && shares*price+fee > p.cash {
		shares--
		fee = costs.Fee.Fee(shares * price)
	}
	if shares <= 0 {
		return fail(fmt.Errorf("initial cash %g cannot buy a single share at %g", p.cash, price))
	}

	seed := []folio.Transaction{
		folio.NewCashTransaction(p.cash, base, start, "initial funding"),
		folio.NewAssetTransaction(p.asset, shares, -shares*price, base, start, "initial buy"),
	}
	if fee > 0 {
		seed = append(seed, folio.Transaction{
			Type:     folio.Fee{},
			CashFlow: folio.NewCashFlow(-fee, base, start),
		})
	}

	dividends, err := ledgerDividends(ctx, store, p.asset, shares)
	if err != nil {
		return fail(err)
	}
	var strat folio.Strategy
	if p.reinvest {
		strat = folio.NewReInvestInSingleStock(p.asset, market, dividends, costs)
	} else {
		strat = folio.NewStaticInSingleStock(p.asset, dividends, costs)
	}

	series, err := folio.Backtest(ctx, base, seed, strat, start, end, market)
	if err != nil {
		return fail(err)
	}
	printMarkdown(backtestMarkdown(p.asset, base, series))
	return subcommands.ExitSuccess
}

// ledgerDividends derives per-share dividend cash flows from the dividends
// recorded in the ledger for the asset, scaled by the simulated quantity.
func ledgerDividends(ctx context.Context, store folio.TransactionStore, assetID int64, shares float64) ([]folio.CashFlow, error) {
	txs, err := store.AllTransactions(ctx)
	if err != nil {
		return nil, err
	}
	var out []folio.CashFlow
	for _, tx := range txs {
		d, ok := tx.Type.(folio.Dividend)
		if !ok || d.AssetID != assetID {
			continue
		}
		perShare := tx.CashFlow.Amount.Amount / shares
		out = append(out, folio.NewCashFlow(perShare, tx.CashFlow.Amount.Currency, tx.CashFlow.Date))
	}
	return out, nil
}

func backtestMarkdown(assetID int64, base folio.Currency, series []folio.TimeValue) string {
	s := folio.Summarize(series)
	var b strings.Builder
	fmt.Fprintf(&b, "# Backtest of asset %d\n\n", assetID)
	if len(series) > 0 {
		first, last := series[0], series[len(series)-1]
		fmt.Fprintf(&b, "- Start value: %s\n", folio.NewCashAmount(first.Value, base))
		fmt.Fprintf(&b, "- End value: %s\n", folio.NewCashAmount(last.Value, base))
	}
	fmt.Fprintf(&b, "- Total return: %.2f%%\n", 100*s.TotalReturn)
	fmt.Fprintf(&b, "- Annualized volatility: %.2f%%\n", 100*s.AnnualizedVolatility)
	fmt.Fprintf(&b, "- Max drawdown: %.2f%%\n", 100*s.MaxDrawdown)
	return b.String()
}
