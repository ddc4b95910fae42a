package sequence

import (
	"fmt"
	"strconv"

	"github.com/polarsim/harness/internal/caseapi"
	"github.com/polarsim/harness/internal/config"
	"github.com/polarsim/harness/internal/recipe"
)

// ResolutionError reports that a recipe could not be expanded against the
// given case defaults. It is scoped to the one expansion; the catalog and
// other cases are unaffected.
type ResolutionError struct {
	Recipe string
	Reason error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot expand recipe %s: %v", e.Recipe, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return e.Reason }

// Layout keys only take effect on the second run of a two-run comparison:
// the first run uses the case defaults they override.
var layoutKeys = []string{
	config.KeyNInst,
	config.KeyNTasks,
	config.KeyNThreads,
	config.KeyRootPE,
}

// Keys that select hybrid/branch behavior; the producer phase of the
// referenced case runs without them.
var refKeys = []string{
	config.KeyRunType,
	config.KeyRunRefCase,
	config.KeyRunRefDate,
	config.KeyGetRefCase,
}

// Expand derives the ordered phase executions of a recipe for a case. The
// recipe's overrides are resolved against caseDefaults first (left to right,
// with $-references taking the value current at apply time), then the phase
// structure is read off the well-known stop/restart/run-type keys.
func Expand(r *recipe.Recipe, caseID caseapi.ID, caseDefaults config.Config) (*Plan, error) {
	resolved, err := config.Resolve(r.Overrides, caseDefaults)
	if err != nil {
		return nil, &ResolutionError{Recipe: r.Name, Reason: err}
	}

	stop := criterionOf(resolved, config.KeyStopOption, config.KeyStopN)
	rest := criterionOf(resolved, config.KeyRestOption, config.KeyRestN)
	hist := criterionOf(resolved, config.KeyHistOption, config.KeyHistN)
	runType := resolved[config.KeyRunType]

	resubmits := 0
	if raw := resolved[config.KeyResubmit]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &ResolutionError{
				Recipe: r.Name,
				Reason: fmt.Errorf("RESUBMIT value %q is not a number", raw),
			}
		}
		resubmits = n
	}

	plan := &Plan{Recipe: r, CaseID: caseID, Untested: r.Untested}

	switch runType {
	case "hybrid", "branch":
		if err := expandMultiCase(plan, r, caseID, resolved, stop, rest, hist, runType); err != nil {
			return nil, err
		}
	default:
		expandSingleCase(plan, r, caseID, resolved, caseDefaults, stop, rest, hist, resubmits)
	}

	return plan, nil
}

func expandSingleCase(plan *Plan, r *recipe.Recipe, caseID caseapi.ID, resolved, caseDefaults config.Config, stop, rest, hist Criterion, resubmits int) {
	first := resolved.Clone()
	first[config.KeyContinueRun] = "FALSE"
	// A two-run layout comparison keeps the case defaults on the first run.
	if len(r.Suffixes) > 1 && rest.IsZero() {
		for _, key := range layoutKeys {
			if _, set := r.Override(key); !set {
				continue
			}
			if def, ok := caseDefaults[key]; ok {
				first[key] = def
			} else {
				delete(first, key)
			}
		}
	}

	plan.Phases = append(plan.Phases, Phase{
		Index:   0,
		CaseID:  caseID,
		Mode:    ModeStartup,
		Stop:    stop,
		Restart: rest,
		History: hist,
		Suffix:  r.Suffixes[0],
		Config:  first,
	})

	if len(r.Suffixes) < 2 {
		return
	}

	second := resolved.Clone()
	phase := Phase{
		Index:   1,
		CaseID:  caseID,
		History: hist,
		Suffix:  r.Suffixes[1],
		Config:  second,
	}

	if !rest.IsZero() {
		// Restart comparison: resume from the mid-run restart and finish
		// the remaining simulated time.
		phase.Mode = ModeContinue
		phase.Stop = remainingStop(stop, rest)
		second[config.KeyContinueRun] = "TRUE"
		second[config.KeyStopN] = strconv.Itoa(phase.Stop.N)
		phase.ViaResubmit = resubmits > 0
	} else {
		// Layout comparison: repeat the whole run under the modified
		// layout and compare against the first run.
		phase.Mode = ModeStartup
		phase.Stop = stop
		second[config.KeyContinueRun] = "FALSE"
	}

	plan.Phases = append(plan.Phases, phase)
}

func expandMultiCase(plan *Plan, r *recipe.Recipe, caseID caseapi.ID, resolved config.Config, stop, rest, hist Criterion, runType string) error {
	refCase := resolved[config.KeyRunRefCase]
	if refCase == "" {
		return &ResolutionError{
			Recipe: r.Name,
			Reason: fmt.Errorf("RUN_TYPE=%s requires RUN_REFCASE", runType),
		}
	}
	refDate := resolved[config.KeyRunRefDate]

	// The reference case is a distinct identity even when the recipe names
	// this case: the producer run happens in its own directory.
	refID := caseapi.ID(refCase)
	if refCase == string(caseID) || refCase == resolved[config.KeyCase] {
		refID = caseID + ".ref"
	}

	producerCfg := resolved.Clone()
	for _, key := range refKeys {
		delete(producerCfg, key)
	}
	producerCfg[config.KeyRunType] = "startup"
	producerCfg[config.KeyContinueRun] = "FALSE"
	producerCfg[config.KeyCase] = string(refID)

	plan.Phases = append(plan.Phases, Phase{
		Index:   0,
		CaseID:  refID,
		Mode:    ModeStartup,
		Stop:    stop,
		Restart: rest,
		History: hist,
		Suffix:  r.Suffixes[0],
		Config:  producerCfg,
	})

	mode := ModeHybrid
	if runType == "branch" {
		mode = ModeBranch
	}

	consumerCfg := resolved.Clone()
	consumerCfg[config.KeyContinueRun] = "FALSE"

	suffix := r.Suffixes[0]
	if len(r.Suffixes) > 1 {
		suffix = r.Suffixes[1]
	}

	// The clone edge is the chain's ordering constraint: this phase must
	// not start until the producer's restart exists on durable storage.
	plan.Phases = append(plan.Phases, Phase{
		Index:   1,
		CaseID:  caseID,
		Mode:    mode,
		Stop:    stop,
		Restart: rest,
		History: hist,
		Suffix:  suffix,
		Config:  consumerCfg,
		CloneFrom: &CloneRef{
			CaseID:     refID,
			PhaseIndex: 0,
			Date:       refDate,
		},
	})
	return nil
}

func criterionOf(cfg config.Config, optionKey, nKey string) Criterion {
	raw, ok := cfg[nKey]
	if !ok {
		return Criterion{}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return Criterion{}
	}
	return Criterion{Option: cfg[optionKey], N: n}
}

// remainingStop computes the continuation segment's length. When the units
// differ the full stop criterion is reused; the comparison still holds since
// both sides end at the same simulated date.
func remainingStop(stop, rest Criterion) Criterion {
	if stop.Option == rest.Option && stop.N > rest.N {
		return Criterion{Option: stop.Option, N: stop.N - rest.N}
	}
	return stop
}
