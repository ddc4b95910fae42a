package sequence

import (
	"fmt"

	"github.com/polarsim/harness/internal/caseapi"
	"github.com/polarsim/harness/internal/config"
	"github.com/polarsim/harness/internal/recipe"
)

// Mode is the continuation mode a phase starts in.
type Mode int

const (
	// ModeStartup begins from fresh initial conditions.
	ModeStartup Mode = iota
	// ModeContinue resumes from this case's own on-disk restart.
	ModeContinue
	// ModeHybrid resumes from another case's restart, discarding that
	// case's run history.
	ModeHybrid
	// ModeBranch resumes from another case's restart and diverges while
	// retaining its history.
	ModeBranch
)

var modeNames = map[Mode]string{
	ModeStartup:  "startup",
	ModeContinue: "continue",
	ModeHybrid:   "hybrid",
	ModeBranch:   "branch",
}

func (m Mode) String() string { return modeNames[m] }

// Criterion is a unit + count pair, e.g. {"ndays", 11}.
type Criterion struct {
	Option string
	N      int
}

// IsZero reports whether the criterion is unset.
func (c Criterion) IsZero() bool { return c.Option == "" && c.N == 0 }

func (c Criterion) String() string {
	if c.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%d %s", c.N, c.Option)
}

// CloneRef names the producer of the restart artifact a hybrid or branch
// phase begins from: a specific phase of a different, previously executed
// case. The consumer must not start before that phase's restart exists on
// durable storage.
type CloneRef struct {
	CaseID     caseapi.ID
	PhaseIndex int
	Date       string
}

// Phase is one contiguous sub-run of a case between two stop events. Phases
// are derived fresh on every expansion and never persisted on their own.
type Phase struct {
	Index   int
	CaseID  caseapi.ID
	Mode    Mode
	Stop    Criterion
	Restart Criterion
	History Criterion

	// Suffix labels the history artifacts this phase produces so a later
	// comparison can tell them apart from another phase's.
	Suffix string

	// Config is the full configuration in effect for this phase, with the
	// recipe's overrides resolved against the case defaults.
	Config config.Config

	// CloneFrom is set when the phase begins from another case's restart.
	CloneFrom *CloneRef

	// ViaResubmit marks a phase whose execution arrives through the
	// submission controller's resubmit path rather than a fresh submit.
	ViaResubmit bool
}

// ID renders a stable identity for graph edges and reporting.
func (p Phase) ID() string {
	return fmt.Sprintf("%s#%d", p.CaseID, p.Index)
}

// Plan is the ordered expansion of a recipe for one case.
type Plan struct {
	Recipe   *recipe.Recipe
	CaseID   caseapi.ID
	Phases   []Phase
	Untested bool
}

// PhaseProducing returns the phase that writes artifacts with the suffix.
func (p *Plan) PhaseProducing(suffix string) (Phase, bool) {
	for _, ph := range p.Phases {
		if ph.Suffix == suffix {
			return ph, true
		}
	}
	return Phase{}, false
}

// ObligationsDueAfter returns the recipe obligations whose later producing
// phase is the given one. The comparison runs once both sides exist, which is
// exactly when the later phase completes.
func (p *Plan) ObligationsDueAfter(phase Phase) []recipe.Obligation {
	var due []recipe.Obligation
	for _, ob := range p.Recipe.Obligations {
		a, okA := p.PhaseProducing(ob.SuffixA)
		b, okB := p.PhaseProducing(ob.SuffixB)
		if !okA || !okB {
			continue
		}
		later := a
		if b.Index > a.Index || (b.CaseID == p.CaseID && a.CaseID != p.CaseID) {
			later = b
		}
		if later.ID() == phase.ID() {
			due = append(due, ob)
		}
	}
	return due
}
