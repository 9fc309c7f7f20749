package folio

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/mwestra/folio/date"
)

// TimeValue is one point of a valuation series.
type TimeValue struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Backtest simulates a strategy over [start, end]. Starting from the given
// seed transactions it asks the strategy for new transactions each day,
// replays them into the running position and records the portfolio value at
// the reference hour of the step's end. The returned series has one point
// per strategy step, the first one after the opening day's transactions
// have been replayed and marked.
func Backtest(ctx context.Context, base Currency, seed []Transaction, strat Strategy, start, end date.Date, m *Market) ([]TimeValue, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("backtest: start %s is not before end %s", start, end)
	}
	txs := make([]Transaction, len(seed))
	copy(txs, seed)
	nextID := int64(1)
	for i := range txs {
		if txs[i].ID == nil {
			id := nextID
			txs[i].ID = &id
		}
		if *txs[i].ID >= nextID {
			nextID = *txs[i].ID + 1
		}
	}

	p := NewPortfolioPosition(base)
	var series []TimeValue

	current := start
	for current.Before(end) {
		added, err := strat.Apply(ctx, p, current)
		if err != nil {
			return nil, fmt.Errorf("backtest on %s: %w", current, err)
		}
		for _, tx := range added {
			id := nextID
			nextID++
			tx.ID = &id
			txs = append(txs, tx)
		}

		next := strat.NextDay(current)
		if end.Before(next) {
			next = end
		}
		if err := CalcDeltaPosition(ctx, p, txs, &current, &next, m); err != nil {
			return nil, fmt.Errorf("backtest on %s: %w", current, err)
		}
		at := next.At(ReferenceHour)
		p.AddQuote(ctx, m, at)
		series = append(series, TimeValue{Time: at, Value: p.CalcTotals().Value})
		current = next
	}
	return series, nil
}

// BacktestSummary aggregates a valuation series into headline figures.
// AnnualizedVolatility is the standard deviation of daily simple returns
// scaled by sqrt(252); MaxDrawdown is the largest peak-to-trough loss as a
// fraction of the peak.
type BacktestSummary struct {
	TotalReturn          float64
	AnnualizedVolatility float64
	MaxDrawdown          float64
}

// Summarize computes summary statistics for a valuation series. Series with
// fewer than two points yield a zero summary.
func Summarize(series []TimeValue) BacktestSummary {
	if len(series) < 2 {
		return BacktestSummary{}
	}
	returns := make([]float64, 0, len(series)-1)
	peak := series[0].Value
	var maxDD float64
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1].Value, series[i].Value
		if prev != 0 {
			returns = append(returns, cur/prev-1)
		}
		if cur > peak {
			peak = cur
		} else if peak > 0 {
			if dd := (peak - cur) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	s := BacktestSummary{MaxDrawdown: maxDD}
	if first := series[0].Value; first != 0 {
		s.TotalReturn = series[len(series)-1].Value/first - 1
	}
	if len(returns) >= 2 {
		s.AnnualizedVolatility = stat.StdDev(returns, nil) * math.Sqrt(252)
	}
	return s
}
