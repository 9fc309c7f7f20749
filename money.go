package folio

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mwestra/folio/date"
)

// CashAmount is an amount of money in a given currency.
type CashAmount struct {
	Amount   float64  `json:"amount"`
	Currency Currency `json:"currency"`
}

// NewCashAmount returns a cash amount in the given currency.
func NewCashAmount(amount float64, currency Currency) CashAmount {
	return CashAmount{Amount: amount, Currency: currency}
}

// Rounded returns the amount rounded to the currency's rounding digits. The
// rounding itself is done in decimal arithmetic to avoid binary float
// artifacts on cent boundaries.
func (a CashAmount) Rounded() float64 {
	d := decimal.NewFromFloat(a.Amount).Round(int32(a.Currency.RoundingDigits))
	f, _ := d.Float64()
	return f
}

func (a CashAmount) String() string {
	d := decimal.NewFromFloat(a.Amount).Round(int32(a.Currency.RoundingDigits))
	return fmt.Sprintf("%s %s", d.StringFixed(int32(a.Currency.RoundingDigits)), a.Currency)
}

// CashFlow is a cash amount moving at a given calendar date.
type CashFlow struct {
	Amount CashAmount `json:"amount"`
	Date   date.Date  `json:"date"`
}

// NewCashFlow returns a cash flow of the given amount and currency at a date.
func NewCashFlow(amount float64, currency Currency, on date.Date) CashFlow {
	return CashFlow{Amount: NewCashAmount(amount, currency), Date: on}
}

// Aggregatable reports whether two cash flows may be summed into one, i.e.
// they share the same currency and the same date.
func (c CashFlow) Aggregatable(o CashFlow) bool {
	return c.Amount.Currency.Equal(o.Amount.Currency) && c.Date == o.Date
}

// Aggregate returns the sum of both cash flows. It panics if they are not
// aggregatable; callers check Aggregatable first.
func (c CashFlow) Aggregate(o CashFlow) CashFlow {
	if !c.Aggregatable(o) {
		panic(fmt.Sprintf("cash flows %v and %v cannot be aggregated", c, o))
	}
	return NewCashFlow(c.Amount.Amount+o.Amount.Amount, c.Amount.Currency, c.Date)
}

func (c CashFlow) String() string {
	return fmt.Sprintf("%s on %s", c.Amount, c.Date)
}
