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

type txCmd struct {
	start string
	end   string
	tail  int
}

func (*txCmd) Name() string     { return "tx" }
func (*txCmd) Synopsis() string { return "list transactions in the ledger" }
func (*txCmd) Usage() string {
	return `qf tx [-s <start_date>] [-e <end_date>] [-tail <n>]

  Lists transactions, optionally restricted to the window [start, end).
`
}

func (p *txCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.start, "s", "", "Only transactions on or after this date (YYYY-MM-DD).")
	f.StringVar(&p.end, "e", "", "Only transactions strictly before this date (YYYY-MM-DD).")
	f.IntVar(&p.tail, "tail", 0, "Show only the last N transactions.")
}

func (p *txCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log := newLogger()
	db, store, err := openStore(log)
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	txs, err := store.AllTransactions(ctx)
	if err != nil {
		return fail(err)
	}

	start, end, err := parseWindow(p.start, p.end)
	if err != nil {
		return fail(err)
	}
	var filtered []folio.Transaction
	for _, tx := range txs {
		on := tx.CashFlow.Date
		if start != nil && on.Before(*start) {
			continue
		}
		if end != nil && !on.Before(*end) {
			continue
		}
		filtered = append(filtered, tx)
	}
	if p.tail > 0 && len(filtered) > p.tail {
		filtered = filtered[len(filtered)-p.tail:]
	}

	printMarkdown(transactionsMarkdown(filtered))
	return subcommands.ExitSuccess
}

// parseWindow turns optional date strings into replay bounds.
func parseWindow(start, end string) (*date.Date, *date.Date, error) {
	var s, e *date.Date
	if start != "" {
		d, err := date.Parse(start)
		if err != nil {
			return nil, nil, fmt.Errorf("start date: %w", err)
		}
		s = &d
	}
	if end != "" {
		d, err := date.Parse(end)
		if err != nil {
			return nil, nil, fmt.Errorf("end date: %w", err)
		}
		e = &d
	}
	return s, e, nil
}

func transactionsMarkdown(txs []folio.Transaction) string {
	var b strings.Builder
	b.WriteString("# Transactions\n\n")
	if len(txs) == 0 {
		b.WriteString("No transactions.\n")
		return b.String()
	}
	b.WriteString("| ID | Date | Kind | Asset | Amount | Note |\n")
	b.WriteString("|---:|------|------|------:|-------:|------|\n")
	for _, tx := range txs {
		id := ""
		if tx.ID != nil {
			id = fmt.Sprintf("%d", *tx.ID)
		}
		asset := ""
		if aid, ok := tx.AssetID(); ok {
			asset = fmt.Sprintf("%d", aid)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			id, tx.CashFlow.Date, tx.Type.Kind(), asset, tx.CashFlow.Amount, tx.Note)
	}
	return b.String()
}
