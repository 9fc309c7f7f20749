package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mwestra/folio"
	"github.com/mwestra/folio/date"
)

// Store implements the folio store interfaces on top of a DB. Quote times
// are stored as Unix seconds; currencies travel as their bare code and are
// rebuilt with their registered rounding digits on read.
type Store struct {
	db  *DB
	log zerolog.Logger
}

// New returns a Store over the given database.
func New(db *DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "store").Logger()}
}

func scanQuote(row interface{ Scan(...any) error }) (folio.Quote, error) {
	var (
		price float64
		unix  int64
		code  string
	)
	if err := row.Scan(&price, &unix, &code); err != nil {
		return folio.Quote{}, err
	}
	currency, err := folio.ParseCurrency(code)
	if err != nil {
		return folio.Quote{}, fmt.Errorf("stored currency: %w", err)
	}
	return folio.Quote{Price: price, Time: time.Unix(unix, 0), Currency: currency}, nil
}

// LastQuoteBefore implements folio.QuoteStore.
func (s *Store) LastQuoteBefore(ctx context.Context, assetID int64, t time.Time) (folio.Quote, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT price, time, currency FROM quotes
		 WHERE asset_id = ? AND time <= ?
		 ORDER BY time DESC LIMIT 1`, assetID, t.Unix())
	q, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return folio.Quote{}, fmt.Errorf("%w: asset %d at or before %s", folio.ErrNotFound, assetID, t.Format(time.RFC3339))
	}
	if err != nil {
		return folio.Quote{}, fmt.Errorf("query last quote: %w", err)
	}
	return q, nil
}

// QuotesInRange implements folio.QuoteStore.
func (s *Store) QuotesInRange(ctx context.Context, assetID int64, start, end time.Time) ([]folio.Quote, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT price, time, currency FROM quotes
		 WHERE asset_id = ? AND time >= ? AND time < ?
		 ORDER BY time`, assetID, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("query quotes in range: %w", err)
	}
	return collectQuotes(rows)
}

// LastFxQuoteBefore implements folio.QuoteStore.
func (s *Store) LastFxQuoteBefore(ctx context.Context, code folio.CurrencyCode, t time.Time) (folio.Quote, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT price, time, currency FROM fx_quotes
		 WHERE code = ? AND time <= ?
		 ORDER BY time DESC LIMIT 1`, string(code), t.Unix())
	q, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return folio.Quote{}, fmt.Errorf("%w: currency %s at or before %s", folio.ErrNotFound, code, t.Format(time.RFC3339))
	}
	if err != nil {
		return folio.Quote{}, fmt.Errorf("query last fx quote: %w", err)
	}
	return q, nil
}

// FxQuotesInRange implements folio.QuoteStore.
func (s *Store) FxQuotesInRange(ctx context.Context, code folio.CurrencyCode, start, end time.Time) ([]folio.Quote, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT price, time, currency FROM fx_quotes
		 WHERE code = ? AND time >= ? AND time < ?
		 ORDER BY time`, string(code), start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("query fx quotes in range: %w", err)
	}
	return collectQuotes(rows)
}

func collectQuotes(rows *sql.Rows) ([]folio.Quote, error) {
	defer rows.Close()
	var out []folio.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return out, nil
}

// InsertQuote implements folio.QuoteWriter.
func (s *Store) InsertQuote(ctx context.Context, assetID int64, q folio.Quote) error {
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO quotes (asset_id, price, time, currency) VALUES (?, ?, ?, ?)`,
		assetID, q.Price, q.Time.Unix(), string(q.Currency.Code))
	if err != nil {
		return fmt.Errorf("insert quote for asset %d: %w", assetID, err)
	}
	return nil
}

// InsertFxQuote implements folio.QuoteWriter.
func (s *Store) InsertFxQuote(ctx context.Context, code folio.CurrencyCode, q folio.Quote) error {
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO fx_quotes (code, price, time, currency) VALUES (?, ?, ?, ?)`,
		string(code), q.Price, q.Time.Unix(), string(q.Currency.Code))
	if err != nil {
		return fmt.Errorf("insert fx quote for %s: %w", code, err)
	}
	return nil
}

// AllCurrencies implements folio.CurrencyStore.
func (s *Store) AllCurrencies(ctx context.Context) ([]folio.Currency, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, code, rounding_digits FROM currencies ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query currencies: %w", err)
	}
	defer rows.Close()
	var out []folio.Currency
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate currencies: %w", err)
	}
	return out, nil
}

func scanCurrency(row interface{ Scan(...any) error }) (folio.Currency, error) {
	var (
		id     int64
		code   string
		digits int
	)
	if err := row.Scan(&id, &code, &digits); err != nil {
		return folio.Currency{}, err
	}
	parsed, err := folio.ParseCurrencyCode(code)
	if err != nil {
		return folio.Currency{}, fmt.Errorf("stored currency: %w", err)
	}
	return folio.NewCurrency(&id, parsed, digits), nil
}

// CurrencyByID implements folio.CurrencyStore.
func (s *Store) CurrencyByID(ctx context.Context, id int64) (folio.Currency, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT id, code, rounding_digits FROM currencies WHERE id = ?`, id)
	c, err := scanCurrency(row)
	if errors.Is(err, sql.ErrNoRows) {
		return folio.Currency{}, fmt.Errorf("%w: currency id %d", folio.ErrNotFound, id)
	}
	if err != nil {
		return folio.Currency{}, fmt.Errorf("query currency %d: %w", id, err)
	}
	return c, nil
}

// GetOrCreateCurrency implements folio.CurrencyStore.
func (s *Store) GetOrCreateCurrency(ctx context.Context, code folio.CurrencyCode) (folio.Currency, error) {
	var out folio.Currency
	err := WithTransaction(s.db.conn, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT id, code, rounding_digits FROM currencies WHERE code = ?`, string(code))
		c, err := scanCurrency(row)
		switch {
		case err == nil:
			out = c
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		digits := folio.DefaultRoundingDigits(code)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO currencies (code, rounding_digits) VALUES (?, ?)`, string(code), digits)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		out = folio.NewCurrency(&id, code, digits)
		s.log.Debug().Str("code", string(code)).Int64("id", id).Msg("currency created")
		return nil
	})
	if err != nil {
		return folio.Currency{}, fmt.Errorf("get or create currency %s: %w", code, err)
	}
	return out, nil
}

// InsertTransaction implements folio.TransactionStore. The assigned id is
// written back into the transaction.
func (s *Store) InsertTransaction(ctx context.Context, tx *folio.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	if tx.ID != nil {
		return 0, fmt.Errorf("%w: transaction already persisted with id %d", folio.ErrInvalidTransaction, *tx.ID)
	}

	var (
		assetID sql.NullInt64
		delta   sql.NullFloat64
		ref     sql.NullInt64
	)
	switch v := tx.Type.(type) {
	case folio.Asset:
		assetID = sql.NullInt64{Int64: v.AssetID, Valid: true}
		delta = sql.NullFloat64{Float64: v.PositionDelta, Valid: true}
	case folio.Dividend:
		assetID = sql.NullInt64{Int64: v.AssetID, Valid: true}
	case folio.Interest:
		assetID = sql.NullInt64{Int64: v.AssetID, Valid: true}
	case folio.Tax:
		if v.TransactionRef != nil {
			ref = sql.NullInt64{Int64: *v.TransactionRef, Valid: true}
		}
	case folio.Fee:
		if v.TransactionRef != nil {
			ref = sql.NullInt64{Int64: *v.TransactionRef, Valid: true}
		}
	}

	res, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO transactions (kind, asset_id, position_delta, transaction_ref, amount, currency, date, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(tx.Type.Kind()), assetID, delta, ref,
		tx.CashFlow.Amount.Amount, string(tx.CashFlow.Amount.Currency.Code),
		tx.CashFlow.Date.String(), tx.Note)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	if err := tx.SetID(id); err != nil {
		return 0, err
	}
	s.log.Debug().Int64("id", id).Str("kind", string(tx.Type.Kind())).Msg("transaction inserted")
	return id, nil
}

// AllTransactions implements folio.TransactionStore, returning transactions
// in insertion order.
func (s *Store) AllTransactions(ctx context.Context) ([]folio.Transaction, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, kind, asset_id, position_delta, transaction_ref, amount, currency, date, note
		 FROM transactions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []folio.Transaction
	for rows.Next() {
		var (
			id      int64
			kind    string
			assetID sql.NullInt64
			delta   sql.NullFloat64
			ref     sql.NullInt64
			amount  float64
			code    string
			day     string
			note    string
		)
		if err := rows.Scan(&id, &kind, &assetID, &delta, &ref, &amount, &code, &day, &note); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx, err := rebuildTransaction(id, kind, assetID, delta, ref, amount, code, day, note)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", id, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func rebuildTransaction(id int64, kind string, assetID sql.NullInt64, delta sql.NullFloat64, ref sql.NullInt64, amount float64, code, day, note string) (folio.Transaction, error) {
	currency, err := folio.ParseCurrency(code)
	if err != nil {
		return folio.Transaction{}, err
	}
	on, err := date.Parse(day)
	if err != nil {
		return folio.Transaction{}, err
	}

	var variant folio.TransactionKind
	switch folio.Kind(kind) {
	case folio.KindCash:
		variant = folio.Cash{}
	case folio.KindAsset:
		variant = folio.Asset{AssetID: assetID.Int64, PositionDelta: delta.Float64}
	case folio.KindDividend:
		variant = folio.Dividend{AssetID: assetID.Int64}
	case folio.KindInterest:
		variant = folio.Interest{AssetID: assetID.Int64}
	case folio.KindTax:
		t := folio.Tax{}
		if ref.Valid {
			t.TransactionRef = &ref.Int64
		}
		variant = t
	case folio.KindFee:
		f := folio.Fee{}
		if ref.Valid {
			f.TransactionRef = &ref.Int64
		}
		variant = f
	default:
		return folio.Transaction{}, fmt.Errorf("%w: unknown kind %q", folio.ErrInvalidTransaction, kind)
	}

	tx := folio.Transaction{
		ID:       &id,
		Type:     variant,
		CashFlow: folio.NewCashFlow(amount, currency, on),
		Note:     note,
	}
	return tx, tx.Validate()
}

// DeleteTransaction implements folio.TransactionStore.
func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transaction id %d", folio.ErrNotFound, id)
	}
	return nil
}

var (
	_ folio.QuoteStore       = (*Store)(nil)
	_ folio.QuoteWriter      = (*Store)(nil)
	_ folio.CurrencyStore    = (*Store)(nil)
	_ folio.TransactionStore = (*Store)(nil)
)
