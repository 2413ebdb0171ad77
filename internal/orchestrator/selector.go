package orchestrator

import (
	"sort"
	"strings"

	"github.com/thomascherickal/agentflow/pkg/models"
)

// AgentSelector picks which agent acts next for a group of tasks that
// share the same eligible-agent set. Implementations may be stateful;
// the engine calls Next once per group per iteration.
type AgentSelector interface {
	Next(groupKey string, eligible []models.Agent) models.Agent
}

// RoundRobinSelector cycles through the eligible agents of each group
// independently, so a group's turn order is stable regardless of what
// other groups do.
type RoundRobinSelector struct {
	cursors map[string]int
}

// NewRoundRobinSelector creates a selector with empty cursors.
func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{cursors: make(map[string]int)}
}

// Next returns the group's next agent and advances its cursor.
func (s *RoundRobinSelector) Next(groupKey string, eligible []models.Agent) models.Agent {
	i := s.cursors[groupKey] % len(eligible)
	s.cursors[groupKey] = i + 1
	return eligible[i]
}

// groupKey derives a stable identity for an eligible-agent list. Tasks
// with the same key are dispatched together in one turn.
func groupKey(names []string) string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}
