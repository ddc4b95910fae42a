package sequence

import (
	"errors"
	"testing"

	"github.com/polarsim/harness/internal/caseapi"
	"github.com/polarsim/harness/internal/config"
	"github.com/polarsim/harness/internal/recipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() config.Config {
	return config.Config{
		config.KeyCase:       "t01",
		config.KeyStopOption: "ndays",
		config.KeyStopN:      "5",
		config.KeyNTasks:     "4",
		config.KeyNThreads:   "1",
		config.KeyNInst:      "1",
	}
}

func lookup(t *testing.T, name string) *recipe.Recipe {
	t.Helper()
	r, err := recipe.MustBuiltin().Lookup(name)
	require.NoError(t, err)
	return r
}

func TestExpandSmoke(t *testing.T) {
	plan, err := Expand(lookup(t, "SMS"), "t01", defaults())
	require.NoError(t, err)
	require.Len(t, plan.Phases, 1)

	ph := plan.Phases[0]
	assert.Equal(t, ModeStartup, ph.Mode)
	assert.Equal(t, Criterion{Option: "ndays", N: 5}, ph.Stop)
	assert.Equal(t, "base", ph.Suffix)
	assert.Equal(t, caseapi.ID("t01"), ph.CaseID)
	assert.Equal(t, "FALSE", ph.Config[config.KeyContinueRun])
}

func TestExpandExactRestart(t *testing.T) {
	plan, err := Expand(lookup(t, "ERS"), "t01", defaults())
	require.NoError(t, err)
	require.Len(t, plan.Phases, 2)

	first, second := plan.Phases[0], plan.Phases[1]

	assert.Equal(t, ModeStartup, first.Mode)
	assert.Equal(t, Criterion{Option: "ndays", N: 11}, first.Stop)
	assert.Equal(t, Criterion{Option: "ndays", N: 6}, first.Restart)
	assert.Equal(t, "base", first.Suffix)
	// HIST_N references STOP_N; the reference resolves at apply time.
	assert.Equal(t, Criterion{Option: "ndays", N: 11}, first.History)

	assert.Equal(t, ModeContinue, second.Mode)
	assert.Equal(t, Criterion{Option: "ndays", N: 5}, second.Stop)
	assert.Equal(t, "rest", second.Suffix)
	assert.Equal(t, "TRUE", second.Config[config.KeyContinueRun])
	assert.Equal(t, "5", second.Config[config.KeyStopN])
	assert.False(t, second.ViaResubmit)
}

func TestExpandResubmitDrivenRestart(t *testing.T) {
	plan, err := Expand(lookup(t, "ERR"), "t01", defaults())
	require.NoError(t, err)
	require.Len(t, plan.Phases, 2)
	assert.True(t, plan.Phases[1].ViaResubmit)
	assert.Equal(t, ModeContinue, plan.Phases[1].Mode)
}

func TestExpandLayoutComparison(t *testing.T) {
	plan, err := Expand(lookup(t, "PEM"), "t01", defaults())
	require.NoError(t, err)
	require.Len(t, plan.Phases, 2)

	first, second := plan.Phases[0], plan.Phases[1]

	// The first run keeps the case default layout; only the second run
	// applies the modified PE count.
	assert.Equal(t, "4", first.Config[config.KeyNTasks])
	assert.Equal(t, "2", second.Config[config.KeyNTasks])
	assert.Equal(t, ModeStartup, second.Mode)
	assert.Equal(t, first.Stop, second.Stop)
}

func TestExpandLayoutComparisonWithoutDefault(t *testing.T) {
	base := defaults()
	delete(base, config.KeyNTasks)

	plan, err := Expand(lookup(t, "PEM"), "t01", base)
	require.NoError(t, err)
	require.Len(t, plan.Phases, 2)

	// With no case default to fall back to, the first run carries no layout
	// value at all.
	_, set := plan.Phases[0].Config[config.KeyNTasks]
	assert.False(t, set)
	assert.Equal(t, "2", plan.Phases[1].Config[config.KeyNTasks])
}

func TestExpandRejectsMalformedResubmit(t *testing.T) {
	r := &recipe.Recipe{
		Name: "BADRESUB",
		Overrides: []config.Override{
			{Key: config.KeyStopOption, Value: config.Literal("ndays")},
			{Key: config.KeyStopN, Value: config.Literal("5")},
			{Key: config.KeyResubmit, Value: config.Literal("many")},
		},
		Suffixes: []string{"base"},
	}
	_, err := Expand(r, "t01", defaults())
	require.Error(t, err)

	var resolution *ResolutionError
	require.True(t, errors.As(err, &resolution))
	assert.Contains(t, err.Error(), "RESUBMIT")
}

func TestExpandHybridEmitsCloneRelationship(t *testing.T) {
	plan, err := Expand(lookup(t, "ERI"), "t01", defaults())
	require.NoError(t, err)
	require.Len(t, plan.Phases, 2)

	producer, consumer := plan.Phases[0], plan.Phases[1]

	// RUN_REFCASE is $CASE, so the producer is a distinct identity derived
	// from this case.
	assert.Equal(t, caseapi.ID("t01.ref"), producer.CaseID)
	assert.Equal(t, ModeStartup, producer.Mode)
	assert.Equal(t, "startup", producer.Config[config.KeyRunType])

	assert.Equal(t, caseapi.ID("t01"), consumer.CaseID)
	assert.Equal(t, ModeHybrid, consumer.Mode)
	require.NotNil(t, consumer.CloneFrom)
	assert.Equal(t, caseapi.ID("t01.ref"), consumer.CloneFrom.CaseID)
	assert.Equal(t, 0, consumer.CloneFrom.PhaseIndex)
	assert.Equal(t, "0001-01-07", consumer.CloneFrom.Date)
}

func TestExpandHybridWithoutRefCaseFails(t *testing.T) {
	r := &recipe.Recipe{
		Name: "BADHYB",
		Overrides: []config.Override{
			{Key: config.KeyRunType, Value: config.Literal("hybrid")},
			{Key: config.KeyStopOption, Value: config.Literal("ndays")},
			{Key: config.KeyStopN, Value: config.Literal("5")},
		},
		Suffixes: []string{"base", "hybrid"},
	}
	_, err := Expand(r, "t01", defaults())
	require.Error(t, err)

	var resolution *ResolutionError
	require.True(t, errors.As(err, &resolution))
}

func TestExpandUnresolvedReferenceIsResolutionError(t *testing.T) {
	r := &recipe.Recipe{
		Name: "BADREF",
		Overrides: []config.Override{
			{Key: config.KeyRestN, Value: config.Ref("HIST_N")},
		},
		Suffixes: []string{"base"},
	}
	// HIST_N is neither an earlier override nor a case default here.
	_, err := Expand(r, "t01", config.Config{})
	require.Error(t, err)

	var resolution *ResolutionError
	require.True(t, errors.As(err, &resolution))
	var unresolved *config.UnresolvedReferenceError
	require.True(t, errors.As(err, &unresolved))
}

func TestObligationsDueAfterLaterPhase(t *testing.T) {
	plan, err := Expand(lookup(t, "ERS"), "t01", defaults())
	require.NoError(t, err)

	assert.Empty(t, plan.ObligationsDueAfter(plan.Phases[0]))
	due := plan.ObligationsDueAfter(plan.Phases[1])
	require.Len(t, due, 1)
	assert.Equal(t, "base", due[0].SuffixA)
	assert.Equal(t, "rest", due[0].SuffixB)
}

func TestPhaseGraphOrdering(t *testing.T) {
	plan, err := Expand(lookup(t, "ERI"), "t01", defaults())
	require.NoError(t, err)

	g := NewPhaseGraph(plan)
	require.NoError(t, g.DetectCycles())

	ordered, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, caseapi.ID("t01.ref"), ordered[0].CaseID)
	assert.Equal(t, caseapi.ID("t01"), ordered[1].CaseID)

	deps := g.Dependencies(ordered[1].ID())
	require.Len(t, deps, 1)
	assert.Equal(t, ordered[0].ID(), deps[0])
	assert.Equal(t, []string{ordered[1].ID()}, g.Dependents(ordered[0].ID()))
}

func TestPhaseGraphCycleDetection(t *testing.T) {
	a := Phase{Index: 0, CaseID: "a", Suffix: "base",
		CloneFrom: &CloneRef{CaseID: "b", PhaseIndex: 0}}
	b := Phase{Index: 0, CaseID: "b", Suffix: "base",
		CloneFrom: &CloneRef{CaseID: "a", PhaseIndex: 0}}

	g := NewPhaseGraph(
		&Plan{CaseID: "a", Phases: []Phase{a}},
		&Plan{CaseID: "b", Phases: []Phase{b}},
	)
	require.Error(t, g.DetectCycles())
	_, err := g.TopologicalOrder()
	require.Error(t, err)
}
