package folio

import (
	"encoding/json"
	"fmt"

	"github.com/mwestra/folio/date"
)

// Kind is a typed string identifying a transaction variant.
type Kind string

// Transaction variant names, also used as the JSON discriminator.
const (
	KindCash     Kind = "cash"
	KindAsset    Kind = "asset"
	KindDividend Kind = "dividend"
	KindInterest Kind = "interest"
	KindTax      Kind = "tax"
	KindFee      Kind = "fee"
)

// TransactionKind is the sum type over all transaction variants. Exactly the
// six variants below implement it.
type TransactionKind interface {
	Kind() Kind
	// validate reports whether a variant carries the fields it requires.
	validate() error
}

// Cash is a pure cash movement with no asset attached.
type Cash struct{}

func (Cash) Kind() Kind      { return KindCash }
func (Cash) validate() error { return nil }

// Asset is a trade changing the held quantity of AssetID by PositionDelta
// (positive buys, negative sells). The transaction's cash flow carries the
// signed proceeds or cost of the trade.
type Asset struct {
	AssetID       int64   `json:"asset_id"`
	PositionDelta float64 `json:"position_delta"`
}

func (Asset) Kind() Kind { return KindAsset }
func (a Asset) validate() error {
	if a.AssetID <= 0 {
		return fmt.Errorf("%w: asset transaction without asset id", ErrInvalidTransaction)
	}
	return nil
}

// Dividend is an income event tied to an asset.
type Dividend struct {
	AssetID int64 `json:"asset_id"`
}

func (Dividend) Kind() Kind { return KindDividend }
func (d Dividend) validate() error {
	if d.AssetID <= 0 {
		return fmt.Errorf("%w: dividend transaction without asset id", ErrInvalidTransaction)
	}
	return nil
}

// Interest is an income event tied to an asset.
type Interest struct {
	AssetID int64 `json:"asset_id"`
}

func (Interest) Kind() Kind { return KindInterest }
func (i Interest) validate() error {
	if i.AssetID <= 0 {
		return fmt.Errorf("%w: interest transaction without asset id", ErrInvalidTransaction)
	}
	return nil
}

// Tax is a charge optionally referencing another transaction. When the
// reference resolves to an asset-bearing transaction the charge is attributed
// to that asset, otherwise to the portfolio's unattributed cash bucket.
type Tax struct {
	TransactionRef *int64 `json:"transaction_ref,omitempty"`
}

func (Tax) Kind() Kind      { return KindTax }
func (Tax) validate() error { return nil }

// Fee is a charge optionally referencing another transaction, attributed like
// Tax.
type Fee struct {
	TransactionRef *int64 `json:"transaction_ref,omitempty"`
}

func (Fee) Kind() Kind      { return KindFee }
func (Fee) validate() error { return nil }

// Transaction is a single ledger event: a variant, its cash flow and an
// optional note. The ID is nil until the transaction has been persisted;
// once set it never changes.
type Transaction struct {
	ID       *int64
	Type     TransactionKind
	CashFlow CashFlow
	Note     string
}

// Validate reports ErrInvalidTransaction when the variant is missing required
// fields or the transaction carries no variant at all.
func (t Transaction) Validate() error {
	if t.Type == nil {
		return fmt.Errorf("%w: missing transaction type", ErrInvalidTransaction)
	}
	return t.Type.validate()
}

// AssetID returns the asset the transaction bears on, or false for variants
// without one.
func (t Transaction) AssetID() (int64, bool) {
	switch v := t.Type.(type) {
	case Asset:
		return v.AssetID, true
	case Dividend:
		return v.AssetID, true
	case Interest:
		return v.AssetID, true
	default:
		return 0, false
	}
}

// SetID assigns the persistent identifier. It fails if the transaction
// already has one.
func (t *Transaction) SetID(id int64) error {
	if t.ID != nil {
		return fmt.Errorf("%w: transaction id is immutable once set", ErrInvalidTransaction)
	}
	t.ID = &id
	return nil
}

func (t Transaction) String() string {
	kind := Kind("?")
	if t.Type != nil {
		kind = t.Type.Kind()
	}
	return fmt.Sprintf("%s %s", kind, t.CashFlow)
}

// txEnvelope is the JSON wire form of a transaction: the variant payload is
// flattened next to a "type" discriminator.
type txEnvelope struct {
	ID       *int64          `json:"id,omitempty"`
	Type     Kind            `json:"type"`
	Payload  json.RawMessage `json:"-"`
	CashFlow CashFlow        `json:"cash_flow"`
	Note     string          `json:"note,omitempty"`

	Asset    *Asset    `json:"asset,omitempty"`
	Dividend *Dividend `json:"dividend,omitempty"`
	Interest *Interest `json:"interest,omitempty"`
	Tax      *Tax      `json:"tax,omitempty"`
	Fee      *Fee      `json:"fee,omitempty"`
}

// MarshalJSON encodes the transaction with a "type" discriminator and the
// variant payload under a field of the same name.
func (t Transaction) MarshalJSON() ([]byte, error) {
	if t.Type == nil {
		return nil, fmt.Errorf("%w: cannot encode transaction without type", ErrInvalidTransaction)
	}
	env := txEnvelope{ID: t.ID, Type: t.Type.Kind(), CashFlow: t.CashFlow, Note: t.Note}
	switch v := t.Type.(type) {
	case Cash:
	case Asset:
		env.Asset = &v
	case Dividend:
		env.Dividend = &v
	case Interest:
		env.Interest = &v
	case Tax:
		env.Tax = &v
	case Fee:
		env.Fee = &v
	default:
		return nil, fmt.Errorf("%w: unknown transaction type %T", ErrInvalidTransaction, t.Type)
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes a transaction from its discriminated wire form.
func (t *Transaction) UnmarshalJSON(b []byte) error {
	var env txEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	t.ID = env.ID
	t.CashFlow = env.CashFlow
	t.Note = env.Note
	switch env.Type {
	case KindCash:
		t.Type = Cash{}
	case KindAsset:
		if env.Asset == nil {
			return fmt.Errorf("%w: asset transaction without payload", ErrInvalidTransaction)
		}
		t.Type = *env.Asset
	case KindDividend:
		if env.Dividend == nil {
			return fmt.Errorf("%w: dividend transaction without payload", ErrInvalidTransaction)
		}
		t.Type = *env.Dividend
	case KindInterest:
		if env.Interest == nil {
			return fmt.Errorf("%w: interest transaction without payload", ErrInvalidTransaction)
		}
		t.Type = *env.Interest
	case KindTax:
		tax := Tax{}
		if env.Tax != nil {
			tax = *env.Tax
		}
		t.Type = tax
	case KindFee:
		fee := Fee{}
		if env.Fee != nil {
			fee = *env.Fee
		}
		t.Type = fee
	default:
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidTransaction, env.Type)
	}
	return t.Validate()
}

// NewCashTransaction returns a pure cash movement at the given date.
func NewCashTransaction(amount float64, currency Currency, on date.Date, note string) Transaction {
	return Transaction{Type: Cash{}, CashFlow: NewCashFlow(amount, currency, on), Note: note}
}

// NewAssetTransaction returns a trade of delta units of assetID; amount is
// the signed cash effect of the trade (negative for a buy).
func NewAssetTransaction(assetID int64, delta, amount float64, currency Currency, on date.Date, note string) Transaction {
	return Transaction{
		Type:     Asset{AssetID: assetID, PositionDelta: delta},
		CashFlow: NewCashFlow(amount, currency, on),
		Note:     note,
	}
}

// ResolveRef scans batch for a transaction with the given persistent id and
// returns the asset it bears on. It returns false when the reference is nil,
// does not resolve, or resolves to a transaction without an asset. The scan
// is linear over the supplied batch only; it never consults a store.
func ResolveRef(ref *int64, batch []Transaction) (int64, bool) {
	if ref == nil {
		return 0, false
	}
	for _, tx := range batch {
		if tx.ID != nil && *tx.ID == *ref {
			return tx.AssetID()
		}
	}
	return 0, false
}
