package eodhd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwestra/folio"
	"github.com/mwestra/folio/date"
)

// plainClient bypasses the disk cache so httptest responses are not reused
// across test runs.
func plainClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return New("testkey", zerolog.Nop(),
		WithBaseURL(baseURL),
		WithHTTPClient(http.DefaultClient))
}

func TestDailyPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eod/MCD.US", r.URL.Path)
		assert.Equal(t, "testkey", r.URL.Query().Get("api_token"))
		assert.Equal(t, "2021-03-01", r.URL.Query().Get("from"))
		fmt.Fprint(w, `[
			{"date":"2021-03-01","open":200.0,"adjusted_close":201.5,"close":210.0},
			{"date":"2021-03-02","open":202.0,"adjusted_close":203.0,"close":211.0}
		]`)
	}))
	defer srv.Close()

	c := plainClient(t, srv.URL)
	bars, err := c.DailyPrices(context.Background(), "MCD.US", date.MustParse("2021-03-01"), date.MustParse("2021-03-02"))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, date.MustParse("2021-03-01"), bars[0].Date)
	assert.Equal(t, 201.5, bars[0].Close) // adjusted close, not raw close
	assert.Equal(t, 202.0, bars[1].Open)
}

func TestFxDailyShiftsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eod/USDEUR.FOREX", r.URL.Path)
		fmt.Fprint(w, `[
			{"date":"2021-03-01","open":0.80,"adjusted_close":0.80},
			{"date":"2021-03-02","open":0.82,"adjusted_close":0.82},
			{"date":"2021-03-03","open":0.84,"adjusted_close":0.84}
		]`)
	}))
	defer srv.Close()

	c := plainClient(t, srv.URL)
	bars, err := c.FxDaily(context.Background(), "USD", "EUR", date.MustParse("2021-03-01"), date.MustParse("2021-03-02"))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	// Each day takes the next day's open.
	assert.Equal(t, date.MustParse("2021-03-01"), bars[0].Date)
	assert.Equal(t, 0.82, bars[0].Close)
	assert.Equal(t, date.MustParse("2021-03-02"), bars[1].Date)
	assert.Equal(t, 0.84, bars[1].Close)
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/US67066G1040", r.URL.Path)
		fmt.Fprint(w, `[
			{"Code":"NVDA","Exchange":"US","Name":"NVIDIA Corporation","Currency":"USD","ISIN":"US67066G1040","previousClose":131.14}
		]`)
	}))
	defer srv.Close()

	c := plainClient(t, srv.URL)
	results, err := c.Search(context.Background(), "US67066G1040")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "NVDA", results[0].Code)
	assert.Equal(t, "US", results[0].Exchange)
}

func TestLatestIntraday(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"series":{"intraday":{"data":[[1614585600000,1.041],[1614589200000,1.049]]}}}`)
	}))
	defer srv.Close()

	c := plainClient(t, srv.URL)
	price, err := c.LatestIntraday(context.Background(), srv.URL+"/instrument")
	require.NoError(t, err)
	assert.InDelta(t, 1.049, price, 1e-9)
}

func TestUpdater(t *testing.T) {
	ctx := context.Background()
	eur := folio.MustCurrency("EUR")
	usd := folio.MustCurrency("USD")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/eod/NVD.F":
			fmt.Fprint(w, `[{"date":"2021-03-01","open":500.0,"adjusted_close":510.0}]`)
		case "/eod/USDEUR.FOREX":
			fmt.Fprint(w, `[
				{"date":"2021-03-01","open":0.80,"adjusted_close":0.80},
				{"date":"2021-03-02","open":0.82,"adjusted_close":0.82}
			]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := folio.NewMemoryStore()
	u := NewUpdater(plainClient(t, srv.URL), store, zerolog.Nop())
	u.Track(1, "NVD.F", eur)
	u.TrackPair(usd, eur)

	from, to := date.MustParse("2021-03-01"), date.MustParse("2021-03-01")
	require.NoError(t, u.Update(ctx, from, to))

	at := date.MustParse("2021-03-01").At(folio.ReferenceHour)
	q, err := store.LastQuoteBefore(ctx, 1, at)
	require.NoError(t, err)
	assert.Equal(t, 510.0, q.Price)
	assert.Equal(t, eur.Code, q.Currency.Code)

	fx, err := store.LastFxQuoteBefore(ctx, usd.Code, at)
	require.NoError(t, err)
	assert.InDelta(t, 0.82, fx.Price, 1e-9)

	// The inverse pair was written too.
	inv, err := store.LastFxQuoteBefore(ctx, eur.Code, at)
	require.NoError(t, err)
	assert.InDelta(t, 1/0.82, inv.Price, 1e-9)
}

func TestUpdaterReportsFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such ticker", http.StatusNotFound)
	}))
	defer srv.Close()

	u := NewUpdater(plainClient(t, srv.URL), folio.NewMemoryStore(), zerolog.Nop())
	u.Track(1, "NOPE.X", folio.MustCurrency("EUR"))
	err := u.Update(context.Background(), date.MustParse("2021-03-01"), date.MustParse("2021-03-02"))
	require.Error(t, err)
}
