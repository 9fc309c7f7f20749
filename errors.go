package folio

import "errors"

// Error values returned by the valuation and replay layers. Callers are
// expected to test them with errors.Is; wrapped variants carry context about
// the asset, currency or transaction involved.
var (
	// ErrNotFound reports that no applicable quote exists at or before the
	// requested time.
	ErrNotFound = errors.New("no quote found")

	// ErrConversionFailed reports that no FX path reconciles the quoted
	// currency with the requested one.
	ErrConversionFailed = errors.New("currency conversion failed")

	// ErrInvalidTransaction reports a transaction variant that is missing a
	// required asset id or position delta.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrCacheFailure reports inconsistent internal cache state. It is fatal
	// and never silently degrades to uncached lookups.
	ErrCacheFailure = errors.New("valuation cache failure")
)
