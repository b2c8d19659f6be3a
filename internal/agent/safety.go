package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
	"github.com/t77yq/a2a-travel/internal/travel"
)

const (
	actionCheckDestinationSafety  = "check_destination_safety"
	actionCheckSanctions          = "check_sanctions"
	actionSuggestSafeAlternatives = "suggest_safe_alternatives"

	queryDestinationSafety = "destination_safety"
	querySanctions         = "sanctions"
	querySafeAlternatives  = "safe_alternatives"

	defaultAlternatives = 3
)

// TravelSafetyAgent answers safety questions from the advisory table. It makes
// no network calls.
type TravelSafetyAgent struct {
	*BaseAgent
	table *travel.AdvisoryTable
}

// NewTravelSafetyAgent creates a safety agent backed by table
func NewTravelSafetyAgent(table *travel.AdvisoryTable, logger *zap.Logger) *TravelSafetyAgent {
	a := &TravelSafetyAgent{table: table}
	a.BaseAgent = NewBaseAgent("Travel Safety Agent", model.AgentTypeTravelSafety, nil, logger)

	a.RegisterAction(Action{
		Capability: model.AgentCapability{
			Action:      actionCheckDestinationSafety,
			Description: "Check the travel advisory for a destination",
			Parameters: map[string]model.ParameterSpec{
				"destination": param("string", "Country or city", true),
			},
			Examples: []map[string]any{{"destination": "Ukraine"}},
		},
		Handler: a.checkDestinationSafety,
	})
	a.RegisterAction(Action{
		Capability: model.AgentCapability{
			Action:      actionCheckSanctions,
			Description: "Check whether a country is under sanctions",
			Parameters: map[string]model.ParameterSpec{
				"country": param("string", "Country name", true),
			},
		},
		Handler: a.checkSanctions,
	})
	a.RegisterAction(Action{
		Capability: model.AgentCapability{
			Action:      actionSuggestSafeAlternatives,
			Description: "Suggest safer destinations near a risky one",
			Parameters: map[string]model.ParameterSpec{
				"destination": param("string", "Destination to replace", true),
				"limit":       paramDefault("number", "Maximum suggestions", defaultAlternatives),
			},
		},
		Handler: a.suggestSafeAlternatives,
	})

	a.RegisterQuery(queryDestinationSafety, func(_ context.Context, q map[string]any) (any, error) {
		destination, err := queryString(q, "destination")
		if err != nil {
			return nil, err
		}
		return a.table.Check(destination), nil
	})
	a.RegisterQuery(querySanctions, func(_ context.Context, q map[string]any) (any, error) {
		country, err := queryString(q, "country")
		if err != nil {
			return nil, err
		}
		return a.table.Sanctions(country), nil
	})
	a.RegisterQuery(querySafeAlternatives, func(_ context.Context, q map[string]any) (any, error) {
		destination, err := queryString(q, "destination")
		if err != nil {
			return nil, err
		}
		return a.table.Alternatives(destination, queryInt(q, "limit", defaultAlternatives)), nil
	})

	return a
}

func (a *TravelSafetyAgent) checkDestinationSafety(_ context.Context, task *model.Task) (*model.TaskResult, error) {
	destination := task.Context.String("destination")
	check := a.table.Check(destination)

	data := map[string]any{
		"destination": destination,
		"safe":        check.Safe,
		"advisory":    check.Advisory,
	}
	result := model.Success(data)
	if check.Safe {
		data["recommendation"] = "No travel restrictions in effect"
		return result, nil
	}

	data["recommendation"] = safetyWarning(check)
	result.NextTasks = []model.NextTask{{
		Title:       "Suggest safe alternatives to " + destination,
		Description: fmt.Sprintf("%s failed the safety check", destination),
		AgentType:   model.AgentTypeTravelSafety,
		Context: model.TaskContext{
			"action":      actionSuggestSafeAlternatives,
			"destination": destination,
		},
	}}
	return result, nil
}

func (a *TravelSafetyAgent) checkSanctions(_ context.Context, task *model.Task) (*model.TaskResult, error) {
	check := a.table.Sanctions(task.Context.String("country"))
	return model.Success(map[string]any{
		"country":    check.Country,
		"sanctioned": check.Sanctioned,
		"programs":   check.Programs,
	}), nil
}

func (a *TravelSafetyAgent) suggestSafeAlternatives(_ context.Context, task *model.Task) (*model.TaskResult, error) {
	destination := task.Context.String("destination")
	limit, ok := task.Context.Int("limit")
	if !ok {
		limit = defaultAlternatives
	}

	alternatives := a.table.Alternatives(destination, limit)
	return model.Success(map[string]any{
		"originalDestination": destination,
		"alternatives":        alternatives,
	}), nil
}
