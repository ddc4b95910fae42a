package recipe

import "github.com/polarsim/harness/internal/config"

func ov(key, raw string) config.Override {
	return config.Override{Key: key, Value: config.ParseValue(raw)}
}

func bfb(a, b string) Obligation {
	return Obligation{SuffixA: a, SuffixB: b}
}

// Builtin returns the catalog of stock test recipes. The table is data, not
// behavior: the phase sequencer derives the run plan from the well-known
// override keys, and the obligations state what must match afterwards.
func Builtin() (*Catalog, error) {
	return NewCatalog(builtinRecipes())
}

// MustBuiltin is Builtin for callers that treat a broken stock table as a
// programming error.
func MustBuiltin() *Catalog {
	c, err := Builtin()
	if err != nil {
		panic(err)
	}
	return c
}

func builtinRecipes() []*Recipe {
	return []*Recipe{
		{
			Name:        "SMS",
			Description: "smoke startup test: a single short startup run",
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "5"),
			},
			Suffixes: []string{"base"},
		},
		{
			Name:        "ERS",
			Description: "exact restart from startup: an 11 day initial run writing a restart at day 6, then a 5 day continuation; history must be bit-for-bit",
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "11"),
				ov(config.KeyRestOption, "$STOP_OPTION"),
				ov(config.KeyRestN, "6"),
				ov(config.KeyHistOption, "$STOP_OPTION"),
				ov(config.KeyHistN, "$STOP_N"),
			},
			Suffixes:    []string{"base", "rest"},
			Obligations: []Obligation{bfb("base", "rest")},
		},
		{
			Name:        "ERS2",
			Description: "exact restart run as two full-length runs rather than one shortened continuation",
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "11"),
				ov(config.KeyRestOption, "$STOP_OPTION"),
				ov(config.KeyRestN, "6"),
			},
			Suffixes:    []string{"base", "rest"},
			Obligations: []Obligation{bfb("base", "rest")},
		},
		{
			Name:        "ERT",
			Description: "longer exact restart with a two month initial segment and monthly history writes",
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "nmonths"),
				ov(config.KeyStopN, "2"),
				ov(config.KeyRestOption, "$STOP_OPTION"),
				ov(config.KeyRestN, "1"),
				ov(config.KeyHistOption, "nmonths"),
				ov(config.KeyHistN, "1"),
				ov(config.KeyDoutS, "TRUE"),
			},
			Suffixes:    []string{"base", "rest"},
			Obligations: []Obligation{bfb("base", "rest")},
		},
		{
			Name:        "ERP",
			Description: "exact restart with a changed PE count on the continuation; answers must not depend on the layout",
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "11"),
				ov(config.KeyRestOption, "$STOP_OPTION"),
				ov(config.KeyRestN, "6"),
				ov(config.KeyNTasks, "2"),
			},
			Suffixes:    []string{"base", "rest"},
			Obligations: []Obligation{bfb("base", "rest")},
		},
		{
			Name:        "ERI",
			Description: "hybrid/branch chain: a reference startup run produces the restart a hybrid run begins from, followed by a branch continuation",
			Overrides: []config.Override{
				ov(config.KeyRunType, "hybrid"),
				ov(config.KeyRunRefCase, "$CASE"),
				ov(config.KeyRunRefDate, "0001-01-07"),
				ov(config.KeyGetRefCase, "FALSE"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "11"),
				ov(config.KeyRestOption, "$STOP_OPTION"),
				ov(config.KeyRestN, "6"),
			},
			Suffixes:    []string{"base", "hybrid"},
			Obligations: []Obligation{bfb("base", "hybrid")},
		},
		{
			Name:        "ERR",
			Description: "exact restart driven through the resubmit machinery: the continuation segment arrives via RESUBMIT rather than a manual second run",
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "11"),
				ov(config.KeyRestOption, "$STOP_OPTION"),
				ov(config.KeyRestN, "6"),
				ov(config.KeyResubmit, "1"),
				ov(config.KeyResubmitSetsCR, "TRUE"),
			},
			Suffixes:    []string{"base", "rest"},
			Obligations: []Obligation{bfb("base", "rest")},
		},
		{
			Name:        "SEQ",
			Description: "sequencing test: rerun with all components on a sequential PE layout and compare against the concurrent layout",
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "10"),
				ov(config.KeyRootPE, "0"),
			},
			Suffixes:    []string{"base", "seq"},
			Obligations: []Obligation{bfb("base", "seq")},
		},
		{
			Name:        "NCK",
			Description: "multi-instance test: a single-instance run compared against a two-instance run of the same configuration",
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "5"),
				ov(config.KeyNInst, "2"),
			},
			Suffixes:    []string{"base", "multiinst"},
			Obligations: []Obligation{bfb("base", "multiinst")},
		},
		{
			Name:        "NCR",
			Description: "multi-instance concurrent vs sequential PE layout; declared overrides only, equivalence is validated rather than assumed",
			Untested:    true,
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "5"),
				ov(config.KeyNInst, "2"),
				ov(config.KeyRootPE, "0"),
			},
			Suffixes:    []string{"base", "multiinst"},
			Obligations: []Obligation{bfb("base", "multiinst")},
		},
		{
			Name:        "REP",
			Description: "reproducibility test: the identical run performed twice must be bit-for-bit",
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "5"),
			},
			Suffixes:    []string{"base", "rep2"},
			Obligations: []Obligation{bfb("base", "rep2")},
		},
		{
			Name:        "PEM",
			Description: "modified PE count test: halve the task count on the second run; answers must match",
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "5"),
				ov(config.KeyNTasks, "2"),
			},
			Suffixes:    []string{"base", "modpes"},
			Obligations: []Obligation{bfb("base", "modpes")},
		},
		{
			Name:        "PET",
			Description: "modified threading test: rerun with a different thread count; answers must match",
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "5"),
				ov(config.KeyNThreads, "2"),
			},
			Suffixes:    []string{"base", "single_thread"},
			Obligations: []Obligation{bfb("base", "single_thread")},
		},
		{
			Name:        "PRE",
			Description: "pause/resume test: a run broken by a mid-run stop and resumed must match an unbroken run within roundoff",
			Overrides: []config.Override{
				ov(config.KeyRunType, "startup"),
				ov(config.KeyStopOption, "ndays"),
				ov(config.KeyStopN, "5"),
				ov(config.KeyRestOption, "$STOP_OPTION"),
				ov(config.KeyRestN, "3"),
			},
			Suffixes: []string{"base", "pr"},
			Obligations: []Obligation{
				{SuffixA: "base", SuffixB: "pr", Tolerance: 1e-12},
			},
		},

		// Infrastructure recipes. These validate the orchestrator itself; an
		// injected failure must propagate exactly as a real one would.
		{
			Name:        "TESTBUILDFAIL",
			Description: "fails during the model build",
			InfraOnly:   true,
			Behavior:    BehaviorForceBuildFail,
			Overrides:   smokeOverrides(),
			Suffixes:    []string{"base"},
		},
		{
			Name:        "TESTRUNFAIL",
			Description: "fails during the model run",
			InfraOnly:   true,
			Behavior:    BehaviorForceRunFail,
			Overrides:   smokeOverrides(),
			Suffixes:    []string{"base"},
		},
		{
			Name:        "TESTRUNPASS",
			Description: "passes the model run without doing anything",
			InfraOnly:   true,
			Behavior:    BehaviorForceRunPass,
			Overrides:   smokeOverrides(),
			Suffixes:    []string{"base"},
		},
		{
			Name:        "TESTRUNSLOWPASS",
			Description: "passes the model run after an artificial delay",
			InfraOnly:   true,
			Behavior:    BehaviorSlowPass,
			Overrides:   smokeOverrides(),
			Suffixes:    []string{"base"},
		},
		{
			Name:        "TESTRUNSTARCFAIL",
			Description: "passes the run but fails the short-term archive job",
			InfraOnly:   true,
			Behavior:    BehaviorForceArchiveFail,
			Overrides: append(smokeOverrides(),
				ov(config.KeyDoutS, "TRUE"),
			),
			Suffixes: []string{"base"},
		},
	}
}

func smokeOverrides() []config.Override {
	return []config.Override{
		ov(config.KeyRunType, "startup"),
		ov(config.KeyStopOption, "ndays"),
		ov(config.KeyStopN, "5"),
	}
}
