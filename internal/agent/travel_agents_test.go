package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
	"github.com/t77yq/a2a-travel/internal/orchestrator"
	"github.com/t77yq/a2a-travel/internal/travel"
)

func newFlightAgent(logger *zap.Logger) *FlightBookingAgent {
	flights := travel.NewFlightService(nil, travel.FlightGenerator{}, nil, logger)
	return NewFlightBookingAgent(flights, travel.NewAdvisoryTable(), logger)
}

func newAccommodationAgent(logger *zap.Logger) *AccommodationAgent {
	hotels := travel.NewHotelService(nil, travel.NewHotelCatalog(), nil, logger)
	return NewAccommodationAgent(hotels, travel.NewAdvisoryTable(), logger)
}

func TestTravelSafetyAgent(t *testing.T) {
	logger := zap.NewNop()
	orch := orchestrator.New(logger)
	safety := NewTravelSafetyAgent(travel.NewAdvisoryTable(), logger)
	require.NoError(t, orch.RegisterAgent(safety))

	t.Run("Capabilities", func(t *testing.T) {
		caps := safety.Info().Capabilities
		require.Len(t, caps, 3)
		assert.Equal(t, actionCheckDestinationSafety, caps[0].Action)
		assert.Equal(t, actionCheckSanctions, caps[1].Action)
		assert.Equal(t, actionSuggestSafeAlternatives, caps[2].Action)
	})

	t.Run("Unsafe Destination", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:       "Check Ukraine",
			Description: "Safety check before booking",
			AgentType:   model.AgentTypeTravelSafety,
			Context:     model.TaskContext{"action": actionCheckDestinationSafety, "destination": "Ukraine"},
		})
		assert.Equal(t, safety.ID(), created.AssignedAgentID)

		task := waitForTask(t, orch, created.ID)
		require.NotNil(t, task.Result)
		assert.True(t, task.Result.Success)
		assert.Equal(t, false, task.Result.Data["safe"])

		advisory, ok := task.Result.Data["advisory"].(*model.SafetyAdvisory)
		require.True(t, ok)
		assert.Equal(t, model.AdvisoryDoNotTravel, advisory.Level)

		children := orch.Children(task.ID)
		require.Len(t, children, 1)
		assert.Equal(t, actionSuggestSafeAlternatives, children[0].Context.Action())

		alt := waitForTask(t, orch, children[0].ID)
		require.NotNil(t, alt.Result)
		assert.True(t, alt.Result.Success)
		assert.NotEmpty(t, alt.Result.Data["alternatives"])
	})

	t.Run("Safe Destination", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:     "Check Lisbon",
			AgentType: model.AgentTypeTravelSafety,
			Context:   model.TaskContext{"action": actionCheckDestinationSafety, "destination": "Lisbon"},
		})

		task := waitForTask(t, orch, created.ID)
		assert.Equal(t, true, task.Result.Data["safe"])
		assert.Empty(t, task.Result.NextTasks)
		assert.Empty(t, orch.Children(task.ID))
	})

	t.Run("Sanctions", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:     "Sanctions",
			AgentType: model.AgentTypeTravelSafety,
			Context:   model.TaskContext{"action": actionCheckSanctions, "country": "North Korea"},
		})

		task := waitForTask(t, orch, created.ID)
		assert.Equal(t, true, task.Result.Data["sanctioned"])
	})

	t.Run("Missing Destination", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:     "Check nothing",
			AgentType: model.AgentTypeTravelSafety,
			Context:   model.TaskContext{"action": actionCheckDestinationSafety},
		})

		task := waitForTask(t, orch, created.ID)
		assert.Equal(t, model.TaskStatusCompleted, task.Status)
		assert.False(t, task.Result.Success)
		assert.Equal(t, "destination is required", task.Result.Error)
	})
}

func TestNoAgentForType(t *testing.T) {
	logger := zap.NewNop()
	orch := orchestrator.New(logger)
	require.NoError(t, orch.RegisterAgent(NewTravelSafetyAgent(travel.NewAdvisoryTable(), logger)))

	created := orch.CreateTask(orchestrator.TaskRequest{
		Title:     "Find flights",
		AgentType: model.AgentTypeFlightBooking,
		Context: model.TaskContext{
			"action": actionSearchFlights, "departureCity": "Paris", "arrivalCity": "Rome", "departureDate": "2025-06-01",
		},
	})

	task, err := orch.GetTask(created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPending, task.Status)
	assert.Empty(t, task.AssignedAgentID)
	assert.Nil(t, task.Result)
}

func TestFlightBookingAgent(t *testing.T) {
	logger := zap.NewNop()
	orch := orchestrator.New(logger)
	flights := newFlightAgent(logger)
	require.NoError(t, orch.RegisterAgent(flights))

	t.Run("Risky Destination Spawns Alternatives", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:     "Flights to Ukraine",
			AgentType: model.AgentTypeFlightBooking,
			Priority:  model.TaskPriorityHigh,
			Context: model.TaskContext{
				"action":          actionSearchFlights,
				"departureCity":   "New York",
				"arrivalCity":     "Ukraine",
				"departureDate":   "2025-06-01",
				"skipSafetyCheck": false,
			},
		})

		task := waitForTask(t, orch, created.ID)
		require.NotNil(t, task.Result)
		assert.True(t, task.Result.Success)
		assert.NotEmpty(t, task.Result.Data["safetyWarning"])
		assert.Empty(t, task.Result.Data["flights"])

		children := orch.Children(task.ID)
		require.Len(t, children, 1)
		child := children[0]
		assert.Equal(t, model.AgentTypeTravelSafety, child.AgentType)
		assert.Equal(t, actionSuggestSafeAlternatives, child.Context.Action())
		assert.Equal(t, task.ID, child.ParentTaskID)
		assert.Equal(t, model.TaskPriorityHigh, child.Priority)
		// no safety agent is registered
		assert.Equal(t, model.TaskStatusPending, child.Status)
	})

	t.Run("Skip Safety Check", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:     "Flights to Ukraine anyway",
			AgentType: model.AgentTypeFlightBooking,
			Context: model.TaskContext{
				"action":          actionSearchFlights,
				"departureCity":   "Warsaw",
				"arrivalCity":     "Ukraine",
				"departureDate":   "2025-06-01",
				"skipSafetyCheck": true,
			},
		})

		task := waitForTask(t, orch, created.ID)
		assert.True(t, task.Result.Success)
		assert.NotContains(t, task.Result.Data, "safetyWarning")
		assert.Len(t, task.Result.Data["flights"], 5)
		assert.Equal(t, travel.SourceGenerated, task.Result.Data["source"])
	})

	t.Run("Recommendations", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:     "Best flights",
			AgentType: model.AgentTypeFlightBooking,
			Context: model.TaskContext{
				"action":        actionGetFlightRecommendations,
				"departureCity": "Paris",
				"arrivalCity":   "Tokyo",
				"departureDate": "2025-06-01",
				"preference":    travel.PreferenceFastest,
				"limit":         2,
			},
		})

		task := waitForTask(t, orch, created.ID)
		require.True(t, task.Result.Success)
		recs, ok := task.Result.Data["recommendations"].([]model.Flight)
		require.True(t, ok)
		require.Len(t, recs, 2)
		assert.LessOrEqual(t, recs[0].DurationMins, recs[1].DurationMins)
	})

	t.Run("Invalid Date", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:     "Bad date",
			AgentType: model.AgentTypeFlightBooking,
			Context: model.TaskContext{
				"action": actionSearchFlights, "departureCity": "Paris", "arrivalCity": "Rome", "departureDate": "soon",
			},
		})

		task := waitForTask(t, orch, created.ID)
		assert.Equal(t, model.TaskStatusCompleted, task.Status)
		assert.False(t, task.Result.Success)
		assert.Contains(t, task.Result.Error, "flight search failed")
	})
}

func TestFlightBookingAgent_RouteSafetyViaSafetyAgent(t *testing.T) {
	logger := zap.NewNop()
	orch := orchestrator.New(logger)
	flights := newFlightAgent(logger)
	safety := NewTravelSafetyAgent(travel.NewAdvisoryTable(), logger)
	require.NoError(t, orch.RegisterAgent(flights))
	require.NoError(t, orch.RegisterAgent(safety))

	created := orch.CreateTask(orchestrator.TaskRequest{
		Title:     "Route check",
		AgentType: model.AgentTypeFlightBooking,
		Context: model.TaskContext{
			"action":         actionCheckRouteSafety,
			"departureCity":  "Paris",
			"arrivalCity":    "Kyiv",
			ctxSafetyAgentID: safety.ID(),
		},
	})

	task := waitForTask(t, orch, created.ID)
	require.True(t, task.Result.Success, task.Result.Error)
	assert.Equal(t, false, task.Result.Data["safe"])

	checks, ok := task.Result.Data["checks"].([]model.SafetyCheck)
	require.True(t, ok)
	require.Len(t, checks, 2)
	assert.True(t, checks[0].Safe)
	assert.False(t, checks[1].Safe)
	require.NotNil(t, checks[1].Advisory)
	assert.Equal(t, "Ukraine", checks[1].Advisory.Country)
}

func TestAccommodationAgent(t *testing.T) {
	logger := zap.NewNop()
	orch := orchestrator.New(logger)
	hotels := newAccommodationAgent(logger)
	require.NoError(t, orch.RegisterAgent(hotels))

	t.Run("No Matching Hotels Is Not A Failure", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:     "Hotels in Atlantis",
			AgentType: model.AgentTypeAccommodation,
			Context: model.TaskContext{
				"action": actionSearchHotels, "location": "Atlantis", "checkIn": "2025-06-01", "checkOut": "2025-06-04",
			},
		})

		task := waitForTask(t, orch, created.ID)
		require.NotNil(t, task.Result)
		assert.True(t, task.Result.Success)
		found, ok := task.Result.Data["hotels"].([]model.Hotel)
		require.True(t, ok)
		assert.NotNil(t, found)
		assert.Empty(t, found)
	})

	t.Run("Search", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:     "Hotels in Rome",
			AgentType: model.AgentTypeAccommodation,
			Context: model.TaskContext{
				"action": actionSearchHotels, "location": "Rome", "checkIn": "2025-06-01", "checkOut": "2025-06-04", "guests": 2,
			},
		})

		task := waitForTask(t, orch, created.ID)
		assert.True(t, task.Result.Success)
		assert.Equal(t, 1, task.Result.Data["count"])
		assert.Equal(t, travel.SourceCatalog, task.Result.Data["source"])
	})

	t.Run("Risky Location", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:     "Hotels in Damascus",
			AgentType: model.AgentTypeAccommodation,
			Context: model.TaskContext{
				"action": actionSearchHotels, "location": "Damascus", "checkIn": "2025-06-01", "checkOut": "2025-06-04",
			},
		})

		task := waitForTask(t, orch, created.ID)
		assert.True(t, task.Result.Success)
		assert.NotEmpty(t, task.Result.Data["safetyWarning"])
		require.Len(t, task.Result.NextTasks, 1)
		assert.Len(t, orch.Children(task.ID), 1)
	})

	t.Run("Details", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:     "Hotel details",
			AgentType: model.AgentTypeAccommodation,
			Context:   model.TaskContext{"action": actionGetHotelDetails, "hotelId": "HT-LIS-001"},
		})

		task := waitForTask(t, orch, created.ID)
		require.True(t, task.Result.Success)
		hotel, ok := task.Result.Data["hotel"].(*model.Hotel)
		require.True(t, ok)
		assert.Equal(t, "Casa Alfama", hotel.Name)
	})

	t.Run("Unknown Hotel", func(t *testing.T) {
		created := orch.CreateTask(orchestrator.TaskRequest{
			Title:     "Hotel details",
			AgentType: model.AgentTypeAccommodation,
			Context:   model.TaskContext{"action": actionGetHotelDetails, "hotelId": "nope"},
		})

		task := waitForTask(t, orch, created.ID)
		assert.False(t, task.Result.Success)
		assert.Contains(t, task.Result.Error, "hotel not found")
	})

	t.Run("Availability Query", func(t *testing.T) {
		var answer map[string]any
		requester := NewBaseAgent("planner", model.AgentTypeItineraryPlanner, nil, logger)
		require.NoError(t, orch.RegisterAgent(requester))

		ctx, cancel := testContext()
		defer cancel()
		err := requester.RequestInformation(ctx, hotels.ID(),
			map[string]any{"type": queryHotelAvailability, "location": "Paris"}, "", &answer)
		require.NoError(t, err)
		assert.Equal(t, true, answer["available"])
		assert.Equal(t, 2, answer["count"])
	})
}
