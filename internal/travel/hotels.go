package travel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
)

// ErrHotelNotFound is returned when a hotel id is unknown to every source
var ErrHotelNotFound = errors.New("hotel not found")

// HotelQuery holds hotel search parameters
type HotelQuery struct {
	Location string  `json:"location"`
	CheckIn  string  `json:"checkIn"`
	CheckOut string  `json:"checkOut"`
	Guests   int     `json:"guests"`
	MaxPrice float64 `json:"maxPrice,omitempty"`
}

func (q HotelQuery) cacheKey() string {
	return strings.Join([]string{
		"hotels", normalize(q.Location), q.CheckIn, q.CheckOut,
		strconv.Itoa(q.Guests), strconv.FormatFloat(q.MaxPrice, 'f', 2, 64),
	}, "|")
}

// HotelSearcher finds hotels for a query and looks hotels up by id
type HotelSearcher interface {
	SearchHotels(ctx context.Context, q HotelQuery) ([]model.Hotel, error)
	HotelDetails(ctx context.Context, id string) (*model.Hotel, error)
}

// HotelAPI queries a remote hotel search API
type HotelAPI struct {
	logger     *zap.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHotelAPI creates a hotel API client
func NewHotelAPI(cfg APIConfig, logger *zap.Logger) *HotelAPI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HotelAPI{
		logger:  logger.Named("hotel-api"),
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SearchHotels implements HotelSearcher
func (a *HotelAPI) SearchHotels(ctx context.Context, q HotelQuery) ([]model.Hotel, error) {
	params := url.Values{}
	params.Set("location", q.Location)
	params.Set("checkIn", q.CheckIn)
	params.Set("checkOut", q.CheckOut)
	params.Set("guests", strconv.Itoa(q.Guests))
	if q.MaxPrice > 0 {
		params.Set("maxPrice", strconv.FormatFloat(q.MaxPrice, 'f', 2, 64))
	}

	var body struct {
		Hotels []model.Hotel `json:"hotels"`
	}
	if err := getJSON(ctx, a.httpClient, a.baseURL+"/hotels?"+params.Encode(), a.apiKey, &body); err != nil {
		return nil, err
	}

	a.logger.Debug("Hotel API search completed",
		zap.String("location", q.Location),
		zap.Int("results", len(body.Hotels)))
	return body.Hotels, nil
}

// HotelDetails implements HotelSearcher
func (a *HotelAPI) HotelDetails(ctx context.Context, id string) (*model.Hotel, error) {
	var hotel model.Hotel
	err := getJSON(ctx, a.httpClient, a.baseURL+"/hotels/"+url.PathEscape(id), a.apiKey, &hotel)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, ErrHotelNotFound
		}
		return nil, err
	}
	return &hotel, nil
}

// HotelCatalog serves hotels from a fixed in-memory list. Locations it does
// not know return no hotels.
type HotelCatalog struct {
	hotels []model.Hotel
}

// NewHotelCatalog returns the built-in catalog
func NewHotelCatalog() *HotelCatalog {
	return &HotelCatalog{hotels: defaultHotels()}
}

// NewHotelCatalogFrom returns a catalog holding hotels
func NewHotelCatalogFrom(hotels []model.Hotel) *HotelCatalog {
	return &HotelCatalog{hotels: append([]model.Hotel(nil), hotels...)}
}

// SearchHotels implements HotelSearcher
func (c *HotelCatalog) SearchHotels(_ context.Context, q HotelQuery) ([]model.Hotel, error) {
	location := normalize(q.Location)
	if i := strings.Index(location, ","); i >= 0 {
		location = strings.TrimSpace(location[:i])
	}

	hotels := make([]model.Hotel, 0)
	for _, h := range c.hotels {
		if normalize(h.City) != location {
			continue
		}
		if q.MaxPrice > 0 && h.PricePerNight > q.MaxPrice {
			continue
		}
		hotels = append(hotels, h)
	}
	sort.SliceStable(hotels, func(i, j int) bool { return hotels[i].Rating > hotels[j].Rating })
	return hotels, nil
}

// HotelDetails implements HotelSearcher
func (c *HotelCatalog) HotelDetails(_ context.Context, id string) (*model.Hotel, error) {
	for _, h := range c.hotels {
		if h.ID == id {
			hotel := h
			return &hotel, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrHotelNotFound, id)
}

func defaultHotels() []model.Hotel {
	return []model.Hotel{
		{ID: "HT-PAR-001", Name: "Hotel Lumiere", City: "Paris", Address: "12 Rue de Rivoli, 75001 Paris", Rating: 4.6, PricePerNight: 310, Currency: "USD", Amenities: []string{"wifi", "breakfast", "concierge"}},
		{ID: "HT-PAR-002", Name: "Le Petit Montmartre", City: "Paris", Address: "8 Rue Lepic, 75018 Paris", Rating: 4.2, PricePerNight: 165, Currency: "USD", Amenities: []string{"wifi", "breakfast"}},
		{ID: "HT-LON-001", Name: "The Thames Residence", City: "London", Address: "21 Southbank, London SE1", Rating: 4.5, PricePerNight: 280, Currency: "USD", Amenities: []string{"wifi", "gym", "bar"}},
		{ID: "HT-LON-002", Name: "Camden Lodge", City: "London", Address: "44 Camden High St, London NW1", Rating: 3.9, PricePerNight: 135, Currency: "USD", Amenities: []string{"wifi"}},
		{ID: "HT-TYO-001", Name: "Shinjuku Garden Hotel", City: "Tokyo", Address: "3-1 Nishi-Shinjuku, Tokyo", Rating: 4.7, PricePerNight: 240, Currency: "USD", Amenities: []string{"wifi", "onsen", "restaurant"}},
		{ID: "HT-NYC-001", Name: "Midtown Loft", City: "New York", Address: "230 W 44th St, New York, NY", Rating: 4.3, PricePerNight: 345, Currency: "USD", Amenities: []string{"wifi", "gym"}},
		{ID: "HT-ROM-001", Name: "Albergo del Foro", City: "Rome", Address: "Via dei Fori Imperiali 5, Rome", Rating: 4.4, PricePerNight: 210, Currency: "USD", Amenities: []string{"wifi", "breakfast", "terrace"}},
		{ID: "HT-LIS-001", Name: "Casa Alfama", City: "Lisbon", Address: "Rua de Sao Miguel 19, Lisbon", Rating: 4.5, PricePerNight: 150, Currency: "USD", Amenities: []string{"wifi", "breakfast"}},
		{ID: "HT-KRK-001", Name: "Wawel View Hotel", City: "Krakow", Address: "ul. Grodzka 40, Krakow", Rating: 4.4, PricePerNight: 110, Currency: "USD", Amenities: []string{"wifi", "breakfast", "parking"}},
		{ID: "HT-PRG-001", Name: "Charles Bridge Suites", City: "Prague", Address: "Karlova 12, Prague 1", Rating: 4.6, PricePerNight: 175, Currency: "USD", Amenities: []string{"wifi", "spa"}},
		{ID: "HT-WAW-001", Name: "Vistula Boutique", City: "Warsaw", Address: "Krakowskie Przedmiescie 7, Warsaw", Rating: 4.1, PricePerNight: 120, Currency: "USD", Amenities: []string{"wifi", "bar"}},
	}
}

// HotelSearchResult is a list of hotels tagged with its source
type HotelSearchResult struct {
	Hotels []model.Hotel `json:"hotels"`
	Source Source        `json:"source"`
}

// HotelService searches the primary API and falls back to the catalog
type HotelService struct {
	logger   *zap.Logger
	primary  HotelSearcher
	fallback HotelSearcher
	cache    *Cache
}

// NewHotelService creates a hotel service. primary and cache may be nil.
func NewHotelService(primary, fallback HotelSearcher, cache *Cache, logger *zap.Logger) *HotelService {
	return &HotelService{
		logger:   logger.Named("hotel-service"),
		primary:  primary,
		fallback: fallback,
		cache:    cache,
	}
}

// Search returns hotels for q, preferring cached results
func (s *HotelService) Search(ctx context.Context, q HotelQuery) (*HotelSearchResult, error) {
	key := q.cacheKey()
	var cached HotelSearchResult
	if s.cache.Load(ctx, key, &cached) {
		cached.Source = SourceCache
		return &cached, nil
	}

	var primary, fallback func(context.Context) ([]model.Hotel, error)
	if s.primary != nil {
		primary = func(ctx context.Context) ([]model.Hotel, error) { return s.primary.SearchHotels(ctx, q) }
	}
	if s.fallback != nil {
		fallback = func(ctx context.Context) ([]model.Hotel, error) { return s.fallback.SearchHotels(ctx, q) }
	}

	hotels, source, err := withFallback(ctx, s.logger, "hotels", primary, SourceAPI, fallback, SourceCatalog)
	if err != nil {
		return nil, err
	}
	if hotels == nil {
		hotels = []model.Hotel{}
	}

	result := &HotelSearchResult{Hotels: hotels, Source: source}
	s.cache.Store(ctx, key, result)
	return result, nil
}

// Details looks a hotel up by id, primary source first
func (s *HotelService) Details(ctx context.Context, id string) (*model.Hotel, Source, error) {
	var primary, fallback func(context.Context) (*model.Hotel, error)
	if s.primary != nil {
		primary = func(ctx context.Context) (*model.Hotel, error) { return s.primary.HotelDetails(ctx, id) }
	}
	if s.fallback != nil {
		fallback = func(ctx context.Context) (*model.Hotel, error) { return s.fallback.HotelDetails(ctx, id) }
	}
	return withFallback(ctx, s.logger, "hotel_details", primary, SourceAPI, fallback, SourceCatalog)
}
