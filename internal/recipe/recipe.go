package recipe

import "github.com/polarsim/harness/internal/config"

// Behavior selects how the case-execution collaborator behaves for a recipe.
// Everything except BehaviorNormal exists only to validate the harness itself:
// the injected failure must travel the same paths a real one would.
type Behavior int

const (
	BehaviorNormal Behavior = iota
	BehaviorForceBuildFail
	BehaviorForceRunFail
	BehaviorForceRunPass
	BehaviorForceArchiveFail
	BehaviorSlowPass
)

var behaviorNames = map[Behavior]string{
	BehaviorNormal:           "normal",
	BehaviorForceBuildFail:   "force-build-fail",
	BehaviorForceRunFail:     "force-run-fail",
	BehaviorForceRunPass:     "force-run-pass",
	BehaviorForceArchiveFail: "force-archive-fail",
	BehaviorSlowPass:         "slow-pass",
}

func (b Behavior) String() string { return behaviorNames[b] }

// Obligation requires two artifact suffixes of the same recipe to match after
// both producing phases have completed. Tolerance zero means bit-for-bit.
type Obligation struct {
	SuffixA   string
	SuffixB   string
	Tolerance float64
}

// BitForBit reports whether this obligation requires exact byte equivalence.
func (o Obligation) BitForBit() bool { return o.Tolerance == 0 }

// Recipe is a declarative description of one regression test: how many run
// phases it has, what configuration each phase mutates, and what must match
// across phases. Recipes are immutable once registered in a Catalog.
type Recipe struct {
	// Name identifies the recipe; short upper-case by convention (ERS, SMS).
	Name        string
	Description string

	// InfraOnly marks recipes that exist to validate the orchestrator
	// itself. They are hidden from the public listing and never run by
	// end users.
	InfraOnly bool

	// Untested marks recipes whose declared behavior has not been
	// validated against a reference run. Their comparisons are still
	// executed, but the expanded plan is annotated so a reviewer does not
	// read intent into them beyond what the overrides state.
	Untested bool

	Behavior Behavior

	// Overrides apply in order on top of the case defaults. Order matters:
	// a $-reference may only point at a key defined earlier in this list.
	Overrides []config.Override

	// Suffixes are the artifact labels the recipe's phases produce, in
	// phase order for this case.
	Suffixes []string

	Obligations []Obligation
}

// ProducesSuffix reports whether any phase of the recipe produces the suffix.
func (r *Recipe) ProducesSuffix(suffix string) bool {
	for _, s := range r.Suffixes {
		if s == suffix {
			return true
		}
	}
	return false
}

// Override returns the raw override value for key and whether the recipe sets it.
func (r *Recipe) Override(key string) (config.Value, bool) {
	// Last occurrence wins, matching apply order.
	for i := len(r.Overrides) - 1; i >= 0; i-- {
		if r.Overrides[i].Key == key {
			return r.Overrides[i].Value, true
		}
	}
	return config.Value{}, false
}
