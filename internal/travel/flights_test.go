package travel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
)

func TestFlightGenerator(t *testing.T) {
	gen := FlightGenerator{Count: 4}
	q := FlightQuery{DepartureCity: "Warsaw", ArrivalCity: "Paris", DepartureDate: "2026-07-01"}

	first, err := gen.SearchFlights(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, first, 4)

	second, err := gen.SearchFlights(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for _, f := range first {
		assert.Equal(t, "Warsaw", f.From)
		assert.Equal(t, "Paris", f.To)
		assert.Positive(t, f.Price)
		assert.GreaterOrEqual(t, f.Stops, 0)
		assert.Less(t, f.Stops, 3)

		dep, err := time.Parse(time.RFC3339, f.DepartureTime)
		require.NoError(t, err)
		arr, err := time.Parse(time.RFC3339, f.ArrivalTime)
		require.NoError(t, err)
		assert.Equal(t, time.Duration(f.DurationMins)*time.Minute, arr.Sub(dep))
	}

	_, err = gen.SearchFlights(context.Background(), FlightQuery{DepartureDate: "next week"})
	assert.Error(t, err)
}

func TestFlightService_Fallback(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	api := NewFlightAPI(APIConfig{URL: srv.URL, Timeout: time.Second}, zap.NewNop())
	svc := NewFlightService(api, FlightGenerator{}, nil, zap.NewNop())

	result, err := svc.Search(context.Background(), FlightQuery{
		DepartureCity: "Warsaw", ArrivalCity: "Rome", DepartureDate: "2026-07-01",
	})
	require.NoError(t, err)
	assert.Equal(t, SourceGenerated, result.Source)
	assert.Len(t, result.Flights, 5)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFlightService_API(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/flights", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "Warsaw", r.URL.Query().Get("from"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"flights":[{"id":"F1","airline":"LOT","from":"Warsaw","to":"Rome","price":99.5}]}`))
	}))
	defer srv.Close()

	api := NewFlightAPI(APIConfig{URL: srv.URL, APIKey: "secret"}, zap.NewNop())
	svc := NewFlightService(api, FlightGenerator{}, nil, zap.NewNop())

	result, err := svc.Search(context.Background(), FlightQuery{
		DepartureCity: "Warsaw", ArrivalCity: "Rome", DepartureDate: "2026-07-01",
	})
	require.NoError(t, err)
	assert.Equal(t, SourceAPI, result.Source)
	require.Len(t, result.Flights, 1)
	assert.Equal(t, "F1", result.Flights[0].ID)
	assert.Equal(t, 99.5, result.Flights[0].Price)
}

func TestFlightService_NoSource(t *testing.T) {
	svc := NewFlightService(nil, nil, nil, zap.NewNop())
	_, err := svc.Search(context.Background(), FlightQuery{DepartureDate: "2026-07-01"})
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestFlightService_Cache(t *testing.T) {
	cache, err := NewCache(1<<20, time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"flights":[{"id":"F1","price":120}]}`))
	}))
	defer srv.Close()

	svc := NewFlightService(NewFlightAPI(APIConfig{URL: srv.URL}, zap.NewNop()), nil, cache, zap.NewNop())
	q := FlightQuery{DepartureCity: "Oslo", ArrivalCity: "Lisbon", DepartureDate: "2026-08-10"}

	first, err := svc.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, SourceAPI, first.Source)

	second, err := svc.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, first.Flights, second.Flights)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRankFlights(t *testing.T) {
	flights := []model.Flight{
		{ID: "a", Price: 300, DurationMins: 120, Stops: 0},
		{ID: "b", Price: 150, DurationMins: 400, Stops: 2},
		{ID: "c", Price: 200, DurationMins: 240, Stops: 1},
		{ID: "d", Price: 150, DurationMins: 300, Stops: 1},
	}

	ids := func(fs []model.Flight) []string {
		out := make([]string, 0, len(fs))
		for _, f := range fs {
			out = append(out, f.ID)
		}
		return out
	}

	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(RankFlights(flights, PreferenceCheapest, 0)))
	assert.Equal(t, []string{"a", "c", "d", "b"}, ids(RankFlights(flights, PreferenceFastest, 0)))
	assert.Equal(t, []string{"a", "d", "c", "b"}, ids(RankFlights(flights, PreferenceDirect, 0)))
	assert.Equal(t, []string{"d", "b"}, ids(RankFlights(flights, "", 2)))

	// input order is left alone
	assert.Equal(t, "a", flights[0].ID)
}
