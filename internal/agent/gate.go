package agent

import (
	"fmt"
	"strings"

	"github.com/t77yq/a2a-travel/internal/model"
	"github.com/t77yq/a2a-travel/internal/travel"
)

const (
	ctxSkipSafetyCheck = "skipSafetyCheck"
	ctxSafetyAgentID   = "safetyAgentId"
)

// safetyGate stops a search for a risky destination. It returns nil when the
// search may go ahead, otherwise a successful result carrying a warning, empty
// under listKey and a follow-up task asking the safety agent for alternatives.
func safetyGate(table *travel.AdvisoryTable, task *model.Task, destination, listKey string, empty any) *model.TaskResult {
	if task.Context.Bool(ctxSkipSafetyCheck) {
		return nil
	}

	check := table.Check(destination)
	if check.Safe {
		return nil
	}

	result := model.Success(map[string]any{
		"destination":   destination,
		"safetyWarning": safetyWarning(check),
		"advisory":      check.Advisory,
		listKey:         empty,
	})
	result.NextTasks = []model.NextTask{{
		Title:       "Suggest safe alternatives to " + destination,
		Description: fmt.Sprintf("Find safer destinations than %s for task %s", destination, task.ID),
		AgentType:   model.AgentTypeTravelSafety,
		Context: model.TaskContext{
			"action":      actionSuggestSafeAlternatives,
			"destination": destination,
		},
		Priority: task.Priority,
	}}
	return result
}

func safetyWarning(check model.SafetyCheck) string {
	if check.Advisory == nil {
		return fmt.Sprintf("Travel to %s is not recommended", check.Destination)
	}
	level := strings.ReplaceAll(string(check.Advisory.Level), "_", " ")
	warning := fmt.Sprintf("Travel to %s is not recommended (%s)", check.Destination, level)
	if len(check.Advisory.Reason) > 0 {
		warning += ": " + strings.Join(check.Advisory.Reason, ", ")
	}
	return warning
}

func param(typ, description string, required bool) model.ParameterSpec {
	return model.ParameterSpec{Type: typ, Description: description, Required: required}
}

func paramDefault(typ, description string, def any) model.ParameterSpec {
	return model.ParameterSpec{Type: typ, Description: description, Default: def}
}

func queryString(query map[string]any, key string) (string, error) {
	v, _ := query[key].(string)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func queryInt(query map[string]any, key string, def int) int {
	n, ok := model.TaskContext(query).Int(key)
	if !ok {
		return def
	}
	return n
}
