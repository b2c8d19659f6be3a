package orchestrator

import (
	"math/rand/v2"
	"sync"
)

// Candidate is an agent eligible for a task
type Candidate struct {
	AgentID  string
	InFlight int
}

// SelectionStrategy picks one agent out of the agents registered for a task's type
type SelectionStrategy interface {
	Select(candidates []Candidate) (string, error)
}

// RandomStrategy picks uniformly at random
type RandomStrategy struct{}

// Select implements SelectionStrategy
func (RandomStrategy) Select(candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoAgentsForType
	}
	return candidates[rand.IntN(len(candidates))].AgentID, nil
}

// RoundRobinStrategy cycles through candidates in registration order
type RoundRobinStrategy struct {
	current int
	mu      sync.Mutex
}

// Select implements SelectionStrategy
func (s *RoundRobinStrategy) Select(candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoAgentsForType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	selected := candidates[s.current%len(candidates)]
	s.current++
	return selected.AgentID, nil
}

// LeastLoadStrategy picks the candidate with the fewest in-progress tasks. Ties
// go to the earliest registered agent.
type LeastLoadStrategy struct{}

// Select implements SelectionStrategy
func (LeastLoadStrategy) Select(candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoAgentsForType
	}

	selected := candidates[0]
	for _, c := range candidates[1:] {
		if c.InFlight < selected.InFlight {
			selected = c
		}
	}
	return selected.AgentID, nil
}

// StrategyByName maps a configuration value to a strategy. Unknown names fall
// back to random selection.
func StrategyByName(name string) SelectionStrategy {
	switch name {
	case "round_robin":
		return &RoundRobinStrategy{}
	case "least_load":
		return LeastLoadStrategy{}
	default:
		return RandomStrategy{}
	}
}
