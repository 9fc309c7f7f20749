package folio

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
)

// CurrencyCode is a three-letter, upper-case ISO-style currency code.
type CurrencyCode string

// ParseCurrencyCode validates and normalizes a currency code.
func ParseCurrencyCode(s string) (CurrencyCode, error) {
	if len(s) != 3 {
		return "", fmt.Errorf("currency code %q: must be exactly three characters", s)
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return "", fmt.Errorf("currency code %q: must contain only ASCII letters", s)
		}
	}
	return CurrencyCode(strings.ToUpper(s)), nil
}

// MustCurrencyCode is like ParseCurrencyCode but panics on error.
func MustCurrencyCode(s string) CurrencyCode {
	c, err := ParseCurrencyCode(s)
	if err != nil {
		panic(err.Error())
	}
	return c
}

func (c CurrencyCode) String() string { return string(c) }

// Currency describes a cash denomination. The ID is nil until the currency
// has been persisted by a store; once set it never changes. Currencies are
// compared by code.
type Currency struct {
	ID             *int64
	Code           CurrencyCode
	RoundingDigits int
}

// NewCurrency returns a Currency for the given code. When roundingDigits is
// negative the default for the code is used: the fraction recorded in the
// go-money currency registry when the code is known there, otherwise 2.
func NewCurrency(id *int64, code CurrencyCode, roundingDigits int) Currency {
	if roundingDigits < 0 {
		roundingDigits = DefaultRoundingDigits(code)
	}
	return Currency{ID: id, Code: code, RoundingDigits: roundingDigits}
}

// ParseCurrency builds an unpersisted Currency from a string code with
// default rounding digits.
func ParseCurrency(s string) (Currency, error) {
	code, err := ParseCurrencyCode(s)
	if err != nil {
		return Currency{}, err
	}
	return NewCurrency(nil, code, -1), nil
}

// MustCurrency is like ParseCurrency but panics on error. For tests and
// literals.
func MustCurrency(s string) Currency {
	c, err := ParseCurrency(s)
	if err != nil {
		panic(err.Error())
	}
	return c
}

// DefaultRoundingDigits returns the number of decimal digits used to round
// amounts in the given currency.
func DefaultRoundingDigits(code CurrencyCode) int {
	if cur := money.GetCurrency(string(code)); cur != nil {
		return cur.Fraction
	}
	return 2
}

// Equal reports whether both currencies denote the same denomination.
func (c Currency) Equal(o Currency) bool { return c.Code == o.Code }

func (c Currency) String() string { return string(c.Code) }

// MarshalJSON encodes the currency as its bare code, e.g. "EUR". Store ids
// and rounding digits are local knowledge and never travel with a ledger.
func (c Currency) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c.Code))
}

// UnmarshalJSON decodes a currency from its bare code with default rounding
// digits.
func (c *Currency) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseCurrency(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
