package folio

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/mwestra/folio/date"
)

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (tol %v)", name, got, want, tol)
	}
}

func TestAddTradeAverageCost(t *testing.T) {
	eur := MustCurrency("EUR")
	p := NewPortfolioPosition(eur)

	// Buy 100 for 104, then sell 50 for 60.
	pos := p.position(1)
	pos.addTrade(100, -104)
	pos.addTrade(-50, 60)

	approx(t, "TradingPnL", pos.TradingPnL, 8.0, 1e-4)
	approx(t, "PurchaseValue", pos.PurchaseValue, -52.0, 1e-4)
	approx(t, "Quantity", pos.Quantity, 50.0, 1e-4)

	ep, ok := pos.EffectivePrice()
	if !ok {
		t.Fatal("expected an effective price for a non-flat position")
	}
	approx(t, "EffectivePrice", ep, 1.04, 1e-9)
}

func TestAddTradeCases(t *testing.T) {
	tests := []struct {
		name       string
		trades     [][2]float64 // delta, amount
		quantity   float64
		purchase   float64
		tradingPnL float64
	}{
		{
			name:     "accumulate same direction",
			trades:   [][2]float64{{10, -100}, {10, -120}},
			quantity: 20, purchase: -220, tradingPnL: 0,
		},
		{
			name:     "close out completely",
			trades:   [][2]float64{{10, -100}, {-10, 110}},
			quantity: 0, purchase: 0, tradingPnL: 10,
		},
		{
			name:     "overshoot past zero",
			trades:   [][2]float64{{10, -100}, {-15, 180}}, // sell at 12, carried short 5
			quantity: -5, purchase: 60, tradingPnL: 20,
		},
		{
			// The realized figure covers only the 10 shorted units; the
			// residual long 5 opens at the trade price of 9.
			name:     "overshoot from short to long",
			trades:   [][2]float64{{-10, 100}, {15, -135}},
			quantity: 5, purchase: -45, tradingPnL: 10,
		},
		{
			name:     "short then cover",
			trades:   [][2]float64{{-10, 100}, {10, -80}},
			quantity: 0, purchase: 0, tradingPnL: 20,
		},
		{
			name:     "zero delta trade adjusts cost only",
			trades:   [][2]float64{{10, -100}, {0, -5}},
			quantity: 10, purchase: -105, tradingPnL: 0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var pos Position
			for _, tr := range tc.trades {
				pos.addTrade(tr[0], tr[1])
			}
			approx(t, "Quantity", pos.Quantity, tc.quantity, 1e-9)
			approx(t, "PurchaseValue", pos.PurchaseValue, tc.purchase, 1e-9)
			approx(t, "TradingPnL", pos.TradingPnL, tc.tradingPnL, 1e-9)
		})
	}
}

func TestCalcTotals(t *testing.T) {
	eur := MustCurrency("EUR")
	p := NewPortfolioPosition(eur)
	p.Cash.Quantity = 500

	pos := p.position(1)
	pos.addTrade(10, -100)
	quote := 12.0
	now := time.Now()
	pos.LastQuote = &quote
	pos.LastQuoteTime = &now

	unpriced := p.position(2)
	unpriced.addTrade(5, -50)

	totals := p.CalcTotals()
	// asset 1 at mark 120, asset 2 at cost 50.
	approx(t, "Value", totals.Value, 500+120+50, 1e-9)
	approx(t, "UnrealizedPnL", totals.UnrealizedPnL, 20, 1e-9)
}

func TestResetForPeriod(t *testing.T) {
	eur := MustCurrency("EUR")
	p := NewPortfolioPosition(eur)
	p.Cash.TradingPnL = 3
	p.Cash.Fees = -2

	held := p.position(1)
	held.addTrade(10, -100)
	held.TradingPnL = 7
	held.Dividend = 4
	quote := 11.0
	held.LastQuote = &quote

	flat := p.position(2)
	flat.addTrade(10, -100)
	flat.addTrade(-10, 100)

	p.ResetForPeriod()

	if _, ok := p.Assets[2]; ok {
		t.Error("zero-quantity position should be dropped on reset")
	}
	if held.TradingPnL != 0 || held.Dividend != 0 {
		t.Errorf("accumulators not zeroed: pnl=%v dividend=%v", held.TradingPnL, held.Dividend)
	}
	if p.Cash.TradingPnL != 0 || p.Cash.Fees != 0 {
		t.Error("cash accumulators not zeroed")
	}
	approx(t, "rebased PurchaseValue", held.PurchaseValue, -110, 1e-9)
}

// Accounting a full window must equal the sum of consecutive sub-period
// figures when the position is reset at the boundary.
func TestPeriodAdditivity(t *testing.T) {
	ctx := context.Background()
	eur := MustCurrency("EUR")
	store := NewMemoryStore()
	market := NewMarket(store, store)

	d := func(s string) date.Date { return date.MustParse(s) }
	insertQuote(t, store, 1, 10.0, d("2021-01-04"), eur)
	insertQuote(t, store, 1, 12.0, d("2021-02-01"), eur)
	insertQuote(t, store, 1, 9.0, d("2021-03-01"), eur)

	txs := []Transaction{
		NewCashTransaction(1000, eur, d("2021-01-04"), "funding"),
		NewAssetTransaction(1, 50, -500, eur, d("2021-01-04"), ""),
		NewAssetTransaction(1, -20, 230, eur, d("2021-02-02"), ""),
		NewAssetTransaction(1, 10, -95, eur, d("2021-03-02"), ""),
	}

	end := d("2021-04-01")
	mid := d("2021-02-15")
	start := d("2021-01-01")

	full, err := CalcPosition(ctx, eur, txs, &start, &end, market)
	if err != nil {
		t.Fatal(err)
	}
	full.AddQuote(ctx, market, end.At(ReferenceHour))
	want := full.CalcTotals()

	// Same window split at mid with a reset in between.
	p, err := CalcPosition(ctx, eur, txs, &start, &mid, market)
	if err != nil {
		t.Fatal(err)
	}
	p.AddQuote(ctx, market, mid.At(ReferenceHour))
	first := p.CalcTotals()

	p.ResetForPeriod()
	if err := CalcDeltaPosition(ctx, p, txs, &mid, &end, market); err != nil {
		t.Fatal(err)
	}
	p.AddQuote(ctx, market, end.At(ReferenceHour))
	second := p.CalcTotals()

	rel := func(a, b float64) float64 {
		if d := math.Abs(a - b); d > 0 {
			return d / math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
		}
		return 0
	}
	if got := first.TradingPnL + second.TradingPnL; rel(got, want.TradingPnL) > 1e-6 {
		t.Errorf("TradingPnL: %v + %v != %v", first.TradingPnL, second.TradingPnL, want.TradingPnL)
	}
	if got := first.UnrealizedPnL + second.UnrealizedPnL; rel(got, want.UnrealizedPnL) > 1e-6 {
		t.Errorf("UnrealizedPnL: %v + %v != %v", first.UnrealizedPnL, second.UnrealizedPnL, want.UnrealizedPnL)
	}
	if rel(second.Value, want.Value) > 1e-6 {
		t.Errorf("end-of-window Value: %v != %v", second.Value, want.Value)
	}
}

func TestAddQuoteFallback(t *testing.T) {
	ctx := context.Background()
	eur := MustCurrency("EUR")
	store := NewMemoryStore()
	market := NewMarket(store, store)

	p := NewPortfolioPosition(eur)
	pos := p.position(7)
	pos.addTrade(10, -100)

	// No quote anywhere: fall back to the cost-implied price.
	p.AddQuote(ctx, market, date.MustParse("2021-06-01").At(ReferenceHour))
	if pos.LastQuote == nil {
		t.Fatal("expected fallback quote")
	}
	approx(t, "fallback quote", *pos.LastQuote, 10.0, 1e-9)
	if pos.LastQuoteTime != nil {
		t.Error("fallback must not carry a quote time")
	}

	// Flat position: no price at all.
	pos.addTrade(-10, 100)
	pos.PurchaseValue = 0
	p.AddQuote(ctx, market, date.MustParse("2021-06-01").At(ReferenceHour))
	if pos.LastQuote != nil {
		t.Error("flat unpriced position must have nil quote")
	}
}

func insertQuote(t *testing.T, w QuoteWriter, assetID int64, price float64, on date.Date, c Currency) {
	t.Helper()
	err := w.InsertQuote(context.Background(), assetID, Quote{
		Price:    price,
		Time:     on.At(ReferenceHour),
		Currency: c,
	})
	if err != nil {
		t.Fatal(err)
	}
}
