// Package folio is a position accounting engine. It replays an immutable
// ledger of transactions (trades, cash movements, dividends, interest,
// taxes and fees) into per-asset positions with average-cost basis,
// realized and unrealized P&L, and point-in-time valuation.
//
// The core functionalities include:
//   - Ledger Replay: CalcPosition and CalcDeltaPosition accumulate
//     transactions over half-open calendar windows into a
//     PortfolioPosition, converting foreign cash flows into the
//     portfolio's base currency.
//   - Market Data: Market answers point-in-time asset prices and FX
//     rates from a QuoteStore, with a range-primed cache that turns
//     repeated lookups into a single bulk query.
//   - Valuation: AddQuote marks positions at a reference instant and
//     CalcTotals aggregates value and P&L across the portfolio.
//   - Strategy Simulation: Backtest drives a Strategy day by day over
//     historical quotes and summarizes return, volatility and drawdown.
//
// Persistence lives in the sqlstore subpackage, market data retrieval in
// eodhd, and the `qf` command-line tool ties them together.
package folio
