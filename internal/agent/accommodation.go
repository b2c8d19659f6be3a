package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
	"github.com/t77yq/a2a-travel/internal/travel"
)

const (
	actionSearchHotels    = "search_hotels"
	actionGetHotelDetails = "get_hotel_details"
	actionCheckAreaSafety = "check_area_safety"

	queryHotelAvailability = "hotel_availability"
	queryAreaSafety        = "area_safety"
)

// AccommodationAgent searches hotels and checks areas
type AccommodationAgent struct {
	*BaseAgent
	hotels *travel.HotelService
	table  *travel.AdvisoryTable
}

// NewAccommodationAgent creates an accommodation agent
func NewAccommodationAgent(hotels *travel.HotelService, table *travel.AdvisoryTable, logger *zap.Logger) *AccommodationAgent {
	a := &AccommodationAgent{hotels: hotels, table: table}
	a.BaseAgent = NewBaseAgent("Accommodation Agent", model.AgentTypeAccommodation, nil, logger)

	a.RegisterAction(Action{
		Capability: model.AgentCapability{
			Action:      actionSearchHotels,
			Description: "Search hotels in a location",
			Parameters: map[string]model.ParameterSpec{
				"location":         param("string", "City to stay in", true),
				"checkIn":          param("string", "Check-in date, YYYY-MM-DD", true),
				"checkOut":         param("string", "Check-out date, YYYY-MM-DD", true),
				"guests":           paramDefault("number", "Number of guests", 1),
				"maxPrice":         param("number", "Maximum price per night", false),
				ctxSkipSafetyCheck: paramDefault("boolean", "Skip the destination safety check", false),
			},
			Examples: []map[string]any{{
				"location": "Paris", "checkIn": "2025-06-01", "checkOut": "2025-06-05", "guests": 2,
			}},
		},
		Handler: a.searchHotels,
	})
	a.RegisterAction(Action{
		Capability: model.AgentCapability{
			Action:      actionGetHotelDetails,
			Description: "Get the details of one hotel",
			Parameters: map[string]model.ParameterSpec{
				"hotelId": param("string", "Hotel id from a search result", true),
			},
		},
		Handler: a.getHotelDetails,
	})
	a.RegisterAction(Action{
		Capability: model.AgentCapability{
			Action:      actionCheckAreaSafety,
			Description: "Check the advisory for the area around a hotel",
			Parameters: map[string]model.ParameterSpec{
				"location":       param("string", "City or area", true),
				ctxSafetyAgentID: param("string", "Ask this safety agent instead of the local table", false),
			},
		},
		Handler: a.checkAreaSafety,
	})

	a.RegisterQuery(queryHotelAvailability, a.hotelAvailability)
	a.RegisterQuery(queryAreaSafety, func(ctx context.Context, q map[string]any) (any, error) {
		location, err := queryString(q, "location")
		if err != nil {
			return nil, err
		}
		return a.areaSafety(ctx, location, "", "")
	})

	return a
}

func hotelQuery(tc model.TaskContext) travel.HotelQuery {
	guests, ok := tc.Int("guests")
	if !ok || guests <= 0 {
		guests = 1
	}
	maxPrice, _ := tc.Float("maxPrice")
	return travel.HotelQuery{
		Location: tc.String("location"),
		CheckIn:  tc.String("checkIn"),
		CheckOut: tc.String("checkOut"),
		Guests:   guests,
		MaxPrice: maxPrice,
	}
}

func (a *AccommodationAgent) searchHotels(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	q := hotelQuery(task.Context)
	if gated := safetyGate(a.table, task, q.Location, "hotels", []model.Hotel{}); gated != nil {
		return gated, nil
	}

	found, err := a.hotels.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("hotel search failed: %w", err)
	}

	return model.Success(map[string]any{
		"hotels": found.Hotels,
		"source": found.Source,
		"count":  len(found.Hotels),
	}), nil
}

func (a *AccommodationAgent) getHotelDetails(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	hotel, source, err := a.hotels.Details(ctx, task.Context.String("hotelId"))
	if err != nil {
		return nil, err
	}
	return model.Success(map[string]any{
		"hotel":  hotel,
		"source": source,
	}), nil
}

func (a *AccommodationAgent) checkAreaSafety(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	check, err := a.areaSafety(ctx,
		task.Context.String("location"),
		task.Context.String(ctxSafetyAgentID),
		task.ID)
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"location": check.Destination,
		"safe":     check.Safe,
		"advisory": check.Advisory,
	}
	if !check.Safe {
		data["safetyWarning"] = safetyWarning(check)
	}
	return model.Success(data), nil
}

func (a *AccommodationAgent) areaSafety(ctx context.Context, location, safetyAgentID, taskID string) (model.SafetyCheck, error) {
	if safetyAgentID == "" {
		return a.table.Check(location), nil
	}

	var check model.SafetyCheck
	query := map[string]any{"type": queryDestinationSafety, "destination": location}
	if err := a.RequestInformation(ctx, safetyAgentID, query, taskID, &check); err != nil {
		return model.SafetyCheck{}, fmt.Errorf("safety lookup for %s failed: %w", location, err)
	}
	return check, nil
}

func (a *AccommodationAgent) hotelAvailability(ctx context.Context, q map[string]any) (any, error) {
	query := hotelQuery(model.TaskContext(q))
	if query.Location == "" {
		return nil, fmt.Errorf("location is required")
	}

	found, err := a.hotels.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"location":  query.Location,
		"available": len(found.Hotels) > 0,
		"count":     len(found.Hotels),
		"hotels":    found.Hotels,
	}, nil
}
