package folio

import (
	"context"
	"fmt"
	"math"

	"github.com/mwestra/folio/date"
)

// Strategy decides which transactions to add to a simulated portfolio on a
// given day. Implementations see the portfolio state as of the previous
// valuation and must not mutate it.
type Strategy interface {
	Apply(ctx context.Context, p *PortfolioPosition, on date.Date) ([]Transaction, error)
	NextDay(on date.Date) date.Date
}

// TransactionFee models a broker fee schedule: a proportional fee with a
// floor and an optional cap (Max <= 0 means uncapped).
type TransactionFee struct {
	Min          float64
	Max          float64
	Proportional float64
}

// Fee returns the fee charged for a trade of the given total price.
func (f TransactionFee) Fee(totalPrice float64) float64 {
	fee := math.Max(totalPrice*f.Proportional, f.Min)
	if f.Max > 0 {
		fee = math.Min(fee, f.Max)
	}
	return fee
}

// TransactionCosts bundles trading fees with the tax rate applied to
// dividend income.
type TransactionCosts struct {
	Fee     TransactionFee
	TaxRate float64
}

func dividendAt(on date.Date, dividends []CashFlow) (CashFlow, bool) {
	for _, cf := range dividends {
		if cf.Date == on {
			return cf, true
		}
	}
	return CashFlow{}, false
}

// dividendTransactions builds the dividend and tax transactions for a
// per-share dividend applied to the currently held quantity.
func dividendTransactions(p *PortfolioPosition, assetID int64, perShare CashFlow, costs TransactionCosts) (dividend float64, txs []Transaction) {
	pos, ok := p.Assets[assetID]
	if !ok {
		return 0, nil
	}
	dividend = perShare.Amount.Amount * pos.Quantity
	txs = append(txs, Transaction{
		Type:     Dividend{AssetID: assetID},
		CashFlow: NewCashFlow(dividend, perShare.Amount.Currency, perShare.Date),
	})
	if tax := costs.TaxRate * dividend; tax != 0 {
		txs = append(txs, Transaction{
			Type:     Tax{},
			CashFlow: NewCashFlow(-tax, perShare.Amount.Currency, perShare.Date),
		})
	}
	return dividend, txs
}

// StaticInSingleStock holds a single stock position and books its dividends
// (after tax) as cash, without reinvesting.
type StaticInSingleStock struct {
	assetID   int64
	dividends []CashFlow
	costs     TransactionCosts
}

// NewStaticInSingleStock returns the passive single-stock strategy.
func NewStaticInSingleStock(assetID int64, dividends []CashFlow, costs TransactionCosts) *StaticInSingleStock {
	return &StaticInSingleStock{assetID: assetID, dividends: dividends, costs: costs}
}

// Apply implements Strategy.
func (s *StaticInSingleStock) Apply(_ context.Context, p *PortfolioPosition, on date.Date) ([]Transaction, error) {
	perShare, ok := dividendAt(on, s.dividends)
	if !ok {
		return nil, nil
	}
	_, txs := dividendTransactions(p, s.assetID, perShare, s.costs)
	return txs, nil
}

// NextDay implements Strategy.
func (s *StaticInSingleStock) NextDay(on date.Date) date.Date { return on.Add(1) }

// ReInvestInSingleStock books dividends like StaticInSingleStock and
// reinvests the available cash into whole shares of the same stock at the
// day's reference-hour price, net of fees.
type ReInvestInSingleStock struct {
	assetID   int64
	market    *Market
	dividends []CashFlow
	costs     TransactionCosts
}

// NewReInvestInSingleStock returns the dividend-reinvesting strategy.
func NewReInvestInSingleStock(assetID int64, market *Market, dividends []CashFlow, costs TransactionCosts) *ReInvestInSingleStock {
	return &ReInvestInSingleStock{assetID: assetID, market: market, dividends: dividends, costs: costs}
}

// Apply implements Strategy.
func (s *ReInvestInSingleStock) Apply(ctx context.Context, p *PortfolioPosition, on date.Date) ([]Transaction, error) {
	perShare, ok := dividendAt(on, s.dividends)
	if !ok {
		return nil, nil
	}
	dividend, txs := dividendTransactions(p, s.assetID, perShare, s.costs)
	available := dividend - s.costs.TaxRate*dividend + p.Cash.Quantity

	base := p.Cash.Currency
	price, err := s.market.PriceAt(ctx, s.assetID, base, on.At(ReferenceHour))
	if err != nil {
		return nil, fmt.Errorf("reinvest on %s: %w", on, err)
	}
	shares, fee := s.sharesAndFee(available, price)
	if shares > 0 {
		txs = append(txs, NewAssetTransaction(s.assetID, shares, -shares*price, base, on, "dividend reinvestment"))
		if fee != 0 {
			txs = append(txs, Transaction{
				Type:     Fee{},
				CashFlow: NewCashFlow(-fee, base, on),
			})
		}
	}
	return txs, nil
}

// NextDay implements Strategy.
func (s *ReInvestInSingleStock) NextDay(on date.Date) date.Date { return on.Add(1) }

// sharesAndFee returns the maximum number of whole shares that cash can buy
// at the given price once the fee for the trade is accounted for.
func (s *ReInvestInSingleStock) sharesAndFee(cash, price float64) (shares, fee float64) {
	shares = math.Floor(cash / price)
	fee = s.costs.Fee.Fee(shares * price)
	for shares > 0 && shares*price+fee > cash {
		shares--
		fee = s.costs.Fee.Fee(shares * price)
	}
	if shares <= 0 {
		return 0, 0
	}
	return shares, fee
}
