package sequence

import (
	"fmt"
	"sort"
)

// PhaseGraph is the DAG of phase executions, possibly spanning several cases
// when hybrid/branch recipes chain a consumer onto a producer case. Edges are
// the ordering constraints: a phase follows its predecessor within the same
// case, and a cloning phase follows the producer phase of the referenced case.
type PhaseGraph struct {
	phases map[string]Phase
	deps   map[string][]string // phase ID -> IDs it depends on
}

// NewPhaseGraph builds the dependency graph for one or more expanded plans.
func NewPhaseGraph(plans ...*Plan) *PhaseGraph {
	g := &PhaseGraph{
		phases: make(map[string]Phase),
		deps:   make(map[string][]string),
	}
	for _, plan := range plans {
		var prev *Phase
		for i := range plan.Phases {
			ph := plan.Phases[i]
			id := ph.ID()
			g.phases[id] = ph
			if prev != nil && prev.CaseID == ph.CaseID {
				g.deps[id] = append(g.deps[id], prev.ID())
			}
			if ph.CloneFrom != nil {
				g.deps[id] = append(g.deps[id], fmt.Sprintf("%s#%d", ph.CloneFrom.CaseID, ph.CloneFrom.PhaseIndex))
			}
			prev = &plan.Phases[i]
		}
	}
	return g
}

// Dependencies returns the phase IDs the given phase waits on.
func (g *PhaseGraph) Dependencies(id string) []string {
	return g.deps[id]
}

// Dependents returns the phase IDs that wait on the given phase.
func (g *PhaseGraph) Dependents(id string) []string {
	var out []string
	for other, deps := range g.deps {
		for _, dep := range deps {
			if dep == id {
				out = append(out, other)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// DetectCycles reports an error if the phase dependencies contain a cycle.
func (g *PhaseGraph) DetectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for id := range g.phases {
		if !visited[id] {
			if g.hasCycleDFS(id, visited, recStack) {
				return fmt.Errorf("cycle detected in phase dependencies")
			}
		}
	}
	return nil
}

func (g *PhaseGraph) hasCycleDFS(node string, visited, recStack map[string]bool) bool {
	visited[node] = true
	recStack[node] = true

	for _, dep := range g.deps[node] {
		if !visited[dep] {
			if g.hasCycleDFS(dep, visited, recStack) {
				return true
			}
		} else if recStack[dep] {
			return true
		}
	}

	recStack[node] = false
	return false
}

// TopologicalOrder returns the phases in an execution order that satisfies
// every dependency, using Kahn's algorithm. Ties break on phase ID so the
// order is deterministic.
func (g *PhaseGraph) TopologicalOrder() ([]Phase, error) {
	inDegree := make(map[string]int, len(g.phases))
	dependents := make(map[string][]string, len(g.phases))

	for id := range g.phases {
		inDegree[id] = 0
	}
	for id, deps := range g.deps {
		for _, dep := range deps {
			if _, exists := g.phases[dep]; !exists {
				return nil, fmt.Errorf("phase %s depends on unknown phase %s", id, dep)
			}
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	ordered := make([]Phase, 0, len(g.phases))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, g.phases[current])

		for _, dep := range dependents[current] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
		sort.Strings(queue)
	}

	if len(ordered) != len(g.phases) {
		return nil, fmt.Errorf("cycle detected in phase dependencies")
	}
	return ordered, nil
}
