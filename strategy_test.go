package folio

import (
	"context"
	"testing"

	"github.com/mwestra/folio/date"
)

func TestTransactionFee(t *testing.T) {
	capped := TransactionFee{Min: 1, Max: 10, Proportional: 0.01}
	tests := []struct {
		fee   TransactionFee
		price float64
		want  float64
	}{
		{capped, 50, 1},    // floor
		{capped, 500, 5},   // proportional
		{capped, 5000, 10}, // cap
		{TransactionFee{Min: 1, Proportional: 0.01}, 5000, 50}, // uncapped
		{TransactionFee{}, 5000, 0},
	}
	for _, tc := range tests {
		if got := tc.fee.Fee(tc.price); got != tc.want {
			t.Errorf("Fee(%v) with %+v = %v, want %v", tc.price, tc.fee, got, tc.want)
		}
	}
}

func TestStaticInSingleStock(t *testing.T) {
	ctx := context.Background()
	eur := MustCurrency("EUR")
	on := date.MustParse("2021-01-11")
	dividends := []CashFlow{NewCashFlow(2.0, eur, on)}
	strat := NewStaticInSingleStock(1, dividends, TransactionCosts{TaxRate: 0.25})

	p := NewPortfolioPosition(eur)
	p.position(1).addTrade(10, -1000)

	// No dividend on other days.
	txs, err := strat.Apply(ctx, p, on.Add(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected no transactions off the dividend date, got %d", len(txs))
	}

	txs, err = strat.Apply(ctx, p, on)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected dividend and tax transactions, got %d", len(txs))
	}
	approx(t, "dividend amount", txs[0].CashFlow.Amount.Amount, 20, 1e-9)
	approx(t, "tax amount", txs[1].CashFlow.Amount.Amount, -5, 1e-9)
	if _, ok := txs[0].Type.(Dividend); !ok {
		t.Errorf("first transaction is %T, want Dividend", txs[0].Type)
	}
	if _, ok := txs[1].Type.(Tax); !ok {
		t.Errorf("second transaction is %T, want Tax", txs[1].Type)
	}
}

func TestReInvestInSingleStock(t *testing.T) {
	ctx := context.Background()
	eur := MustCurrency("EUR")
	on := date.MustParse("2021-01-11")

	store := NewMemoryStore()
	insertQuote(t, store, 1, 50.0, on, eur)
	market := NewMarket(store, store)

	dividends := []CashFlow{NewCashFlow(10.0, eur, on)}
	costs := TransactionCosts{
		Fee:     TransactionFee{Min: 1, Proportional: 0.01},
		TaxRate: 0.25,
	}
	strat := NewReInvestInSingleStock(1, market, dividends, costs)

	p := NewPortfolioPosition(eur)
	p.position(1).addTrade(10, -1000)
	p.Cash.Quantity = 20

	txs, err := strat.Apply(ctx, p, on)
	if err != nil {
		t.Fatal(err)
	}
	// dividend 100, tax 25, available 95 at price 50: one share plus fee.
	if len(txs) != 4 {
		t.Fatalf("expected 4 transactions, got %d: %v", len(txs), txs)
	}
	approx(t, "dividend", txs[0].CashFlow.Amount.Amount, 100, 1e-9)
	approx(t, "tax", txs[1].CashFlow.Amount.Amount, -25, 1e-9)
	trade, ok := txs[2].Type.(Asset)
	if !ok {
		t.Fatalf("third transaction is %T, want Asset", txs[2].Type)
	}
	approx(t, "shares bought", trade.PositionDelta, 1, 1e-9)
	approx(t, "trade amount", txs[2].CashFlow.Amount.Amount, -50, 1e-9)
	approx(t, "fee", txs[3].CashFlow.Amount.Amount, -1, 1e-9)
}

func TestSharesAndFee(t *testing.T) {
	s := &ReInvestInSingleStock{costs: TransactionCosts{Fee: TransactionFee{Min: 1}}}

	// A naive floor division overshoots once the fee is added.
	shares, fee := s.sharesAndFee(100, 50)
	approx(t, "shares", shares, 1, 1e-9)
	approx(t, "fee", fee, 1, 1e-9)

	// Not enough cash for a single share.
	shares, fee = s.sharesAndFee(40, 50)
	if shares != 0 || fee != 0 {
		t.Errorf("sharesAndFee(40, 50) = %v, %v; want 0, 0", shares, fee)
	}
}
