package folio

import (
	"context"
	"math"
	"sort"
	"time"
)

// Position is the running state of one holding: a signed quantity, the
// signed cash cost of the currently held quantity (cash paid is negative),
// and the P&L components accumulated so far. A nil AssetID denotes the cash
// position, whose Quantity is the cash balance itself.
type Position struct {
	AssetID       *int64
	Name          string
	Quantity      float64
	PurchaseValue float64
	TradingPnL    float64
	Interest      float64
	Dividend      float64
	Fees          float64
	Tax           float64
	Currency      Currency
	LastQuote     *float64
	LastQuoteTime *time.Time
}

// EffectivePrice returns the average cost per unit of the currently held
// quantity, or false when the position is flat.
func (p *Position) EffectivePrice() (float64, bool) {
	if p.Quantity == 0 {
		return 0, false
	}
	return -p.PurchaseValue / p.Quantity, true
}

// addTrade applies a trade of delta units with the given signed cash amount.
// A trade extending the current direction accumulates quantity and cost. A
// trade reducing it realizes P&L on the closed quantity against the average
// cost of the held lot and removes exactly the realized portion from the
// cost basis, so PurchaseValue stays the cost of what remains. A trade that
// overshoots past zero realizes P&L only on the held quantity; the residual
// re-opens the position on the other side at the trade price.
func (p *Position) addTrade(delta, amount float64) {
	if p.Quantity == 0 || delta == 0 || (p.Quantity > 0) == (delta > 0) {
		p.Quantity += delta
		p.PurchaseValue += amount
		return
	}
	effectivePrice := -p.PurchaseValue / p.Quantity
	tradePrice := -amount / delta
	closed := -delta
	if math.Abs(delta) > math.Abs(p.Quantity) {
		closed = p.Quantity
	}
	pnl := closed * (tradePrice - effectivePrice)
	p.TradingPnL += pnl
	p.Quantity += delta
	p.PurchaseValue += amount - pnl
}

// PortfolioPosition is the aggregate state of one accounting run: the cash
// position plus one Position per referenced asset. It is mutated in place by
// replay and never shared across concurrent mutations.
type PortfolioPosition struct {
	Cash   Position
	Assets map[int64]*Position
}

// NewPortfolioPosition returns an empty portfolio accounted in the given
// base currency.
func NewPortfolioPosition(base Currency) *PortfolioPosition {
	return &PortfolioPosition{
		Cash:   Position{Name: "cash", Currency: base},
		Assets: make(map[int64]*Position),
	}
}

// BaseCurrency returns the currency all aggregate figures are expressed in.
func (p *PortfolioPosition) BaseCurrency() Currency { return p.Cash.Currency }

// AssetIDs returns the ids of all asset positions in ascending order.
func (p *PortfolioPosition) AssetIDs() []int64 {
	ids := make([]int64, 0, len(p.Assets))
	for id := range p.Assets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// position returns the Position for an asset, creating it lazily in the
// portfolio's base currency on first reference.
func (p *PortfolioPosition) position(assetID int64) *Position {
	if pos, ok := p.Assets[assetID]; ok {
		return pos
	}
	id := assetID
	pos := &Position{AssetID: &id, Currency: p.Cash.Currency}
	p.Assets[assetID] = pos
	return pos
}

// AddQuote attaches a valuation at time t to every asset position, converted
// to the base currency. When no quote or FX path is available the position
// falls back to the price implied by its cost basis (nil when flat) with no
// quote time, so an unpriced position reads as zero unrealized P&L instead
// of an error. Cash is implicitly priced at 1.0.
func (p *PortfolioPosition) AddQuote(ctx context.Context, m *Market, t time.Time) {
	for _, id := range p.AssetIDs() {
		pos := p.Assets[id]
		price, err := m.PriceAt(ctx, id, p.Cash.Currency, t)
		if err != nil {
			if ep, ok := pos.EffectivePrice(); ok {
				pos.LastQuote = &ep
			} else {
				pos.LastQuote = nil
			}
			pos.LastQuoteTime = nil
			continue
		}
		at := t
		pos.LastQuote = &price
		pos.LastQuoteTime = &at
	}
}

// PositionTotals is a snapshot aggregate of a portfolio at one instant. It
// is derived on demand and never persisted.
type PositionTotals struct {
	Value         float64
	TradingPnL    float64
	UnrealizedPnL float64
	Dividend      float64
	Interest      float64
	Tax           float64
	Fees          float64
}

// CalcTotals sums cash and all asset positions. Assets with an attached
// quote are marked at quantity times quote; unpriced assets are valued at
// cost, which makes their unrealized P&L zero by construction.
func (p *PortfolioPosition) CalcTotals() PositionTotals {
	totals := PositionTotals{
		Value:      p.Cash.Quantity,
		TradingPnL: p.Cash.TradingPnL,
		Dividend:   p.Cash.Dividend,
		Interest:   p.Cash.Interest,
		Tax:        p.Cash.Tax,
		Fees:       p.Cash.Fees,
	}
	for _, pos := range p.Assets {
		var value float64
		if pos.LastQuote != nil {
			value = pos.Quantity * *pos.LastQuote
		} else {
			value = -pos.PurchaseValue
		}
		totals.Value += value
		totals.UnrealizedPnL += value + pos.PurchaseValue
		totals.TradingPnL += pos.TradingPnL
		totals.Dividend += pos.Dividend
		totals.Interest += pos.Interest
		totals.Tax += pos.Tax
		totals.Fees += pos.Fees
	}
	return totals
}

// ResetForPeriod prepares the portfolio for accounting a new sub-period:
// asset positions with exactly zero quantity are dropped, every remaining
// position has its P&L accumulators zeroed, and the cost basis is rebased to
// the current mark (-quantity * last quote). Positions without an attached
// quote keep their cost basis, which is the same rebase under the valued-at-
// cost convention. Computing a position at the period start, resetting, and
// replaying only the period makes consecutive period P&L figures sum to the
// full-period figure.
func (p *PortfolioPosition) ResetForPeriod() {
	p.Cash.TradingPnL = 0
	p.Cash.Dividend = 0
	p.Cash.Interest = 0
	p.Cash.Fees = 0
	p.Cash.Tax = 0
	for id, pos := range p.Assets {
		if pos.Quantity == 0 {
			delete(p.Assets, id)
			continue
		}
		pos.TradingPnL = 0
		pos.Dividend = 0
		pos.Interest = 0
		pos.Fees = 0
		pos.Tax = 0
		if pos.LastQuote != nil {
			pos.PurchaseValue = -pos.Quantity * *pos.LastQuote
		}
	}
}
