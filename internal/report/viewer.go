package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/polarsim/harness/internal/sequence"
)

// PlanViewer renders a human-readable tree of a recipe's phase plan.
type PlanViewer struct {
	plan  *sequence.Plan
	graph *sequence.PhaseGraph
}

// NewPlanViewer creates a viewer for one expanded plan.
func NewPlanViewer(plan *sequence.Plan) *PlanViewer {
	return &PlanViewer{plan: plan, graph: sequence.NewPhaseGraph(plan)}
}

// ViewDAG returns a tree view of the plan's phases grouped by case, with the
// dependency edges each phase waits on.
func (pv *PlanViewer) ViewDAG() string {
	if len(pv.plan.Phases) == 0 {
		return "No phases in plan"
	}

	byCase := make(map[string][]sequence.Phase)
	for _, ph := range pv.plan.Phases {
		byCase[string(ph.CaseID)] = append(byCase[string(ph.CaseID)], ph)
	}
	cases := make([]string, 0, len(byCase))
	for id := range byCase {
		cases = append(cases, id)
	}
	sort.Strings(cases)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s\n", pv.plan.Recipe.Name))

	for i, caseID := range cases {
		last := i == len(cases)-1
		casePrefix, connector := "├─ ", "│  "
		if last {
			casePrefix, connector = "└─ ", "   "
		}
		sb.WriteString(fmt.Sprintf("%s%s\n", casePrefix, caseID))

		phases := byCase[caseID]
		sort.Slice(phases, func(a, b int) bool { return phases[a].Index < phases[b].Index })

		for j, ph := range phases {
			lastPhase := j == len(phases)-1
			phasePrefix, phaseConnector := connector+"├─ ", connector+"│  "
			if lastPhase {
				phasePrefix, phaseConnector = connector+"└─ ", connector+"   "
			}

			line := fmt.Sprintf("%sphase %d [%s] stop=%s suffix=%s", phasePrefix, ph.Index, ph.Mode, ph.Stop, ph.Suffix)
			if !ph.Restart.IsZero() {
				line += fmt.Sprintf(" restart=%s", ph.Restart)
			}
			if ph.ViaResubmit {
				line += " (via resubmit)"
			}
			sb.WriteString(line + "\n")

			deps := pv.graph.Dependencies(ph.ID())
			sort.Strings(deps)
			for k, dep := range deps {
				depPrefix := phaseConnector + "├─ "
				if k == len(deps)-1 {
					depPrefix = phaseConnector + "└─ "
				}
				sb.WriteString(fmt.Sprintf("%s(waits on) %s\n", depPrefix, dep))
			}
		}
	}
	return sb.String()
}

// ViewObligations returns a one-line-per-obligation summary of what the
// recipe will compare once the phases complete.
func (pv *PlanViewer) ViewObligations() string {
	if len(pv.plan.Recipe.Obligations) == 0 {
		return "No comparison obligations"
	}
	var sb strings.Builder
	for _, ob := range pv.plan.Recipe.Obligations {
		kind := "bit-for-bit"
		if !ob.BitForBit() {
			kind = fmt.Sprintf("tolerance %g", ob.Tolerance)
		}
		sb.WriteString(fmt.Sprintf("%s vs %s: %s\n", ob.SuffixA, ob.SuffixB, kind))
	}
	return sb.String()
}
