package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
)

// FlightQuery holds flight search parameters
type FlightQuery struct {
	DepartureCity string `json:"departureCity"`
	ArrivalCity   string `json:"arrivalCity"`
	DepartureDate string `json:"departureDate"`
	ReturnDate    string `json:"returnDate,omitempty"`
}

func (q FlightQuery) cacheKey() string {
	return strings.Join([]string{"flights", normalize(q.DepartureCity), normalize(q.ArrivalCity), q.DepartureDate, q.ReturnDate}, "|")
}

// FlightSearcher finds flights for a query
type FlightSearcher interface {
	SearchFlights(ctx context.Context, q FlightQuery) ([]model.Flight, error)
}

// APIConfig configures an HTTP search API
type APIConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// FlightAPI queries a remote flight search API
type FlightAPI struct {
	logger     *zap.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewFlightAPI creates a flight API client
func NewFlightAPI(cfg APIConfig, logger *zap.Logger) *FlightAPI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FlightAPI{
		logger:  logger.Named("flight-api"),
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SearchFlights implements FlightSearcher
func (a *FlightAPI) SearchFlights(ctx context.Context, q FlightQuery) ([]model.Flight, error) {
	params := url.Values{}
	params.Set("from", q.DepartureCity)
	params.Set("to", q.ArrivalCity)
	params.Set("date", q.DepartureDate)
	if q.ReturnDate != "" {
		params.Set("return", q.ReturnDate)
	}

	var body struct {
		Flights []model.Flight `json:"flights"`
	}
	if err := getJSON(ctx, a.httpClient, a.baseURL+"/flights?"+params.Encode(), a.apiKey, &body); err != nil {
		return nil, err
	}

	a.logger.Debug("Flight API search completed",
		zap.String("from", q.DepartureCity),
		zap.String("to", q.ArrivalCity),
		zap.Int("results", len(body.Flights)))
	return body.Flights, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL, apiKey string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// StatusError is returned for HTTP error responses
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status: %d", e.StatusCode)
}

var airlines = []struct {
	name string
	code string
}{
	{"Delta Air Lines", "DL"},
	{"Lufthansa", "LH"},
	{"Air France", "AF"},
	{"British Airways", "BA"},
	{"KLM", "KL"},
	{"United Airlines", "UA"},
	{"LOT Polish Airlines", "LO"},
	{"Turkish Airlines", "TK"},
}

// FlightGenerator produces plausible offers for any route. The same query
// always yields the same flights.
type FlightGenerator struct {
	Count int
}

// SearchFlights implements FlightSearcher
func (g FlightGenerator) SearchFlights(_ context.Context, q FlightQuery) ([]model.Flight, error) {
	day, err := time.Parse("2006-01-02", q.DepartureDate)
	if err != nil {
		return nil, fmt.Errorf("invalid departure date %q: %w", q.DepartureDate, err)
	}

	count := g.Count
	if count <= 0 {
		count = 5
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(q.cacheKey()))
	seed := h.Sum32()

	flights := make([]model.Flight, 0, count)
	for i := 0; i < count; i++ {
		n := seed + uint32(i)*2654435761
		airline := airlines[int(n%uint32(len(airlines)))]
		stops := int(n>>8) % 3
		durationMins := 120 + int(n>>4)%540 + stops*95
		departure := day.Add(time.Duration(6*60+int(n>>12)%900) * time.Minute)
		arrival := departure.Add(time.Duration(durationMins) * time.Minute)
		price := 180 + float64(int(n>>16)%900) - float64(stops*40)

		flights = append(flights, model.Flight{
			ID:            fmt.Sprintf("FL-%08x-%d", seed, i+1),
			Airline:       airline.name,
			FlightNumber:  fmt.Sprintf("%s%d", airline.code, 100+int(n>>20)%900),
			From:          q.DepartureCity,
			To:            q.ArrivalCity,
			Price:         price,
			Currency:      "USD",
			DepartureTime: departure.Format(time.RFC3339),
			ArrivalTime:   arrival.Format(time.RFC3339),
			Duration:      formatDuration(durationMins),
			DurationMins:  durationMins,
			Stops:         stops,
		})
	}
	return flights, nil
}

func formatDuration(mins int) string {
	return fmt.Sprintf("%dh %dm", mins/60, mins%60)
}

// FlightSearchResult is a list of flights tagged with its source
type FlightSearchResult struct {
	Flights []model.Flight `json:"flights"`
	Source  Source         `json:"source"`
}

// FlightService searches the primary API and falls back to the generator
type FlightService struct {
	logger   *zap.Logger
	primary  FlightSearcher
	fallback FlightSearcher
	cache    *Cache
}

// NewFlightService creates a flight service. primary and cache may be nil.
func NewFlightService(primary, fallback FlightSearcher, cache *Cache, logger *zap.Logger) *FlightService {
	return &FlightService{
		logger:   logger.Named("flight-service"),
		primary:  primary,
		fallback: fallback,
		cache:    cache,
	}
}

// Search returns flights for q, preferring cached results
func (s *FlightService) Search(ctx context.Context, q FlightQuery) (*FlightSearchResult, error) {
	key := q.cacheKey()
	var cached FlightSearchResult
	if s.cache.Load(ctx, key, &cached) {
		cached.Source = SourceCache
		return &cached, nil
	}

	var primary, fallback func(context.Context) ([]model.Flight, error)
	if s.primary != nil {
		primary = func(ctx context.Context) ([]model.Flight, error) { return s.primary.SearchFlights(ctx, q) }
	}
	if s.fallback != nil {
		fallback = func(ctx context.Context) ([]model.Flight, error) { return s.fallback.SearchFlights(ctx, q) }
	}

	flights, source, err := withFallback(ctx, s.logger, "flights", primary, SourceAPI, fallback, SourceGenerated)
	if err != nil {
		return nil, err
	}
	if flights == nil {
		flights = []model.Flight{}
	}

	result := &FlightSearchResult{Flights: flights, Source: source}
	s.cache.Store(ctx, key, result)
	return result, nil
}

// Flight preferences understood by RankFlights
const (
	PreferenceCheapest = "cheapest"
	PreferenceFastest  = "fastest"
	PreferenceDirect   = "direct"
)

// RankFlights orders a copy of flights by preference and keeps at most limit.
// Unknown preferences order by price, then duration.
func RankFlights(flights []model.Flight, preference string, limit int) []model.Flight {
	ranked := append([]model.Flight(nil), flights...)

	byPrice := func(a, b model.Flight) bool {
		if a.Price != b.Price {
			return a.Price < b.Price
		}
		return a.DurationMins < b.DurationMins
	}

	var less func(a, b model.Flight) bool
	switch preference {
	case PreferenceFastest:
		less = func(a, b model.Flight) bool {
			if a.DurationMins != b.DurationMins {
				return a.DurationMins < b.DurationMins
			}
			return a.Price < b.Price
		}
	case PreferenceDirect:
		less = func(a, b model.Flight) bool {
			if a.Stops != b.Stops {
				return a.Stops < b.Stops
			}
			return byPrice(a, b)
		}
	default:
		less = byPrice
	}

	sort.SliceStable(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
