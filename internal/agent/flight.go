package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
	"github.com/t77yq/a2a-travel/internal/travel"
)

const (
	actionSearchFlights            = "search_flights"
	actionGetFlightRecommendations = "get_flight_recommendations"
	actionCheckRouteSafety         = "check_route_safety"

	queryCheapestFlight = "cheapest_flight"
	queryRouteSafety    = "route_safety"

	defaultRecommendations = 3
)

// FlightBookingAgent searches flights and checks routes
type FlightBookingAgent struct {
	*BaseAgent
	flights *travel.FlightService
	table   *travel.AdvisoryTable
}

// NewFlightBookingAgent creates a flight agent
func NewFlightBookingAgent(flights *travel.FlightService, table *travel.AdvisoryTable, logger *zap.Logger) *FlightBookingAgent {
	a := &FlightBookingAgent{flights: flights, table: table}
	a.BaseAgent = NewBaseAgent("Flight Booking Agent", model.AgentTypeFlightBooking, nil, logger)

	routeParams := map[string]model.ParameterSpec{
		"departureCity":    param("string", "Departure city", true),
		"arrivalCity":      param("string", "Arrival city", true),
		"departureDate":    param("string", "Departure date, YYYY-MM-DD", true),
		"returnDate":       param("string", "Return date, YYYY-MM-DD", false),
		ctxSkipSafetyCheck: paramDefault("boolean", "Skip the destination safety check", false),
	}

	a.RegisterAction(Action{
		Capability: model.AgentCapability{
			Action:      actionSearchFlights,
			Description: "Search flights between two cities",
			Parameters:  routeParams,
			Examples: []map[string]any{{
				"departureCity": "New York", "arrivalCity": "Paris", "departureDate": "2025-06-01",
			}},
		},
		Handler: a.searchFlights,
	})

	recommendParams := make(map[string]model.ParameterSpec, len(routeParams)+2)
	for k, v := range routeParams {
		recommendParams[k] = v
	}
	recommendParams["preference"] = paramDefault("string", "cheapest, fastest or direct", travel.PreferenceCheapest)
	recommendParams["limit"] = paramDefault("number", "Maximum recommendations", defaultRecommendations)
	a.RegisterAction(Action{
		Capability: model.AgentCapability{
			Action:      actionGetFlightRecommendations,
			Description: "Recommend the best flights for a preference",
			Parameters:  recommendParams,
		},
		Handler: a.getRecommendations,
	})

	a.RegisterAction(Action{
		Capability: model.AgentCapability{
			Action:      actionCheckRouteSafety,
			Description: "Check advisories for both ends of a route",
			Parameters: map[string]model.ParameterSpec{
				"departureCity":  param("string", "Departure city", true),
				"arrivalCity":    param("string", "Arrival city", true),
				ctxSafetyAgentID: param("string", "Ask this safety agent instead of the local table", false),
			},
		},
		Handler: a.checkRouteSafety,
	})

	a.RegisterQuery(queryCheapestFlight, a.cheapestFlight)
	a.RegisterQuery(queryRouteSafety, func(ctx context.Context, q map[string]any) (any, error) {
		from, err := queryString(q, "departureCity")
		if err != nil {
			return nil, err
		}
		to, err := queryString(q, "arrivalCity")
		if err != nil {
			return nil, err
		}
		return a.routeSafety(ctx, from, to, "", "")
	})

	return a
}

func flightQuery(tc model.TaskContext) travel.FlightQuery {
	return travel.FlightQuery{
		DepartureCity: tc.String("departureCity"),
		ArrivalCity:   tc.String("arrivalCity"),
		DepartureDate: tc.String("departureDate"),
		ReturnDate:    tc.String("returnDate"),
	}
}

func (a *FlightBookingAgent) searchFlights(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	q := flightQuery(task.Context)
	if gated := safetyGate(a.table, task, q.ArrivalCity, "flights", []model.Flight{}); gated != nil {
		return gated, nil
	}

	found, err := a.flights.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("flight search failed: %w", err)
	}

	return model.Success(map[string]any{
		"flights": found.Flights,
		"source":  found.Source,
		"count":   len(found.Flights),
	}), nil
}

func (a *FlightBookingAgent) getRecommendations(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	q := flightQuery(task.Context)
	if gated := safetyGate(a.table, task, q.ArrivalCity, "recommendations", []model.Flight{}); gated != nil {
		return gated, nil
	}

	preference := task.Context.String("preference")
	if preference == "" {
		preference = travel.PreferenceCheapest
	}
	limit, ok := task.Context.Int("limit")
	if !ok {
		limit = defaultRecommendations
	}

	found, err := a.flights.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("flight search failed: %w", err)
	}

	return model.Success(map[string]any{
		"recommendations": travel.RankFlights(found.Flights, preference, limit),
		"preference":      preference,
		"source":          found.Source,
	}), nil
}

func (a *FlightBookingAgent) checkRouteSafety(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	data, err := a.routeSafety(ctx,
		task.Context.String("departureCity"),
		task.Context.String("arrivalCity"),
		task.Context.String(ctxSafetyAgentID),
		task.ID)
	if err != nil {
		return nil, err
	}
	return model.Success(data), nil
}

// routeSafety checks both cities, asking safetyAgentID when it is set
func (a *FlightBookingAgent) routeSafety(ctx context.Context, from, to, safetyAgentID, taskID string) (map[string]any, error) {
	checks := make([]model.SafetyCheck, 0, 2)
	safe := true
	warnings := make([]string, 0)

	for _, city := range []string{from, to} {
		var check model.SafetyCheck
		if safetyAgentID != "" {
			query := map[string]any{"type": queryDestinationSafety, "destination": city}
			if err := a.RequestInformation(ctx, safetyAgentID, query, taskID, &check); err != nil {
				return nil, fmt.Errorf("safety lookup for %s failed: %w", city, err)
			}
		} else {
			check = a.table.Check(city)
		}

		if !check.Safe {
			safe = false
			warnings = append(warnings, safetyWarning(check))
		}
		checks = append(checks, check)
	}

	return map[string]any{
		"route":    from + " - " + to,
		"safe":     safe,
		"checks":   checks,
		"warnings": warnings,
	}, nil
}

func (a *FlightBookingAgent) cheapestFlight(ctx context.Context, q map[string]any) (any, error) {
	query := flightQuery(model.TaskContext(q))
	if query.DepartureCity == "" || query.ArrivalCity == "" || query.DepartureDate == "" {
		return nil, fmt.Errorf("departureCity, arrivalCity and departureDate are required")
	}

	found, err := a.flights.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	ranked := travel.RankFlights(found.Flights, travel.PreferenceCheapest, 1)
	if len(ranked) == 0 {
		return nil, nil
	}
	return ranked[0], nil
}
