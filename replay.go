package folio

import (
	"context"
	"fmt"
	"time"

	"github.com/mwestra/folio/date"
)

// CurrencyConverter converts between currencies at a point in time. Market
// implements it; replay only needs this narrow view.
type CurrencyConverter interface {
	FxRate(ctx context.Context, base, quote Currency, t time.Time) (float64, error)
}

var _ CurrencyConverter = (*Market)(nil)

// ReferenceHour is the fixed intraday hour used to pick a single FX rate or
// quote per calendar date, an end-of-day mark.
const ReferenceHour = 20

// CalcDeltaPosition folds transactions whose cash-flow date falls in the
// half-open window [start, end) into the portfolio. A nil bound is
// unbounded. Cash flows in a foreign currency are converted into the base
// currency with conv at the date's reference hour before any bookkeeping;
// the converted amount feeds both the cash balance and the asset cost basis.
//
// Tax and Fee references are resolved by a linear scan of the supplied batch
// only. Any error aborts the replay and leaves the portfolio in an
// unspecified state the caller must discard.
func CalcDeltaPosition(ctx context.Context, p *PortfolioPosition, txs []Transaction, start, end *date.Date, conv CurrencyConverter) error {
	base := p.Cash.Currency
	for i := range txs {
		tx := txs[i]
		on := tx.CashFlow.Date
		if start != nil && on.Before(*start) {
			continue
		}
		if end != nil && !on.Before(*end) {
			continue
		}
		// Out-of-window transactions are skipped before any scrutiny.
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}

		amount := tx.CashFlow.Amount.Amount
		if cur := tx.CashFlow.Amount.Currency; !cur.Equal(base) {
			if conv == nil {
				return fmt.Errorf("transaction %d: cash flow in %s but portfolio in %s and no converter: %w",
					i, cur, base, ErrConversionFailed)
			}
			rate, err := conv.FxRate(ctx, cur, base, on.At(ReferenceHour))
			if err != nil {
				return fmt.Errorf("transaction %d on %s: %w", i, on, err)
			}
			amount *= rate
		}

		// Every transaction moves cash, whatever its kind.
		p.Cash.Quantity += amount

		switch v := tx.Type.(type) {
		case Cash:
			// cash already applied above
		case Asset:
			p.position(v.AssetID).addTrade(v.PositionDelta, amount)
		case Dividend:
			p.position(v.AssetID).Dividend += amount
		case Interest:
			p.position(v.AssetID).Interest += amount
		case Tax:
			if assetID, ok := ResolveRef(v.TransactionRef, txs); ok {
				p.position(assetID).Tax += amount
			} else {
				p.Cash.Tax += amount
			}
		case Fee:
			if assetID, ok := ResolveRef(v.TransactionRef, txs); ok {
				p.position(assetID).Fees += amount
			} else {
				p.Cash.Fees += amount
			}
		default:
			return fmt.Errorf("transaction %d: unknown type %T: %w", i, tx.Type, ErrInvalidTransaction)
		}
	}
	return nil
}

// CalcPosition is a convenience that replays the full window into a fresh
// portfolio.
func CalcPosition(ctx context.Context, base Currency, txs []Transaction, start, end *date.Date, conv CurrencyConverter) (*PortfolioPosition, error) {
	p := NewPortfolioPosition(base)
	if err := CalcDeltaPosition(ctx, p, txs, start, end, conv); err != nil {
		return nil, err
	}
	return p, nil
}
