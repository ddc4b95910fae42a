package submit

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarsim/harness/internal/caseapi"
	"github.com/polarsim/harness/internal/config"
	"github.com/polarsim/harness/internal/recipe"
	"github.com/polarsim/harness/internal/sequence"
)

func days(n int) sequence.Criterion {
	return sequence.Criterion{Option: "ndays", N: n}
}

func TestLocalExecutorExactRestartReproduces(t *testing.T) {
	c, err := caseapi.Create(t.TempDir(), "pol.f09.A", nil)
	require.NoError(t, err)
	exec := NewLocalExecutor(io.Discard, io.Discard)
	ctx := context.Background()

	base, err := exec.RunPhase(ctx, c, sequence.Phase{
		Index: 0, CaseID: c.ID, Mode: sequence.ModeStartup,
		Stop: days(11), Restart: days(6), Suffix: "base",
	})
	require.NoError(t, err)
	require.Len(t, base, 1)

	rest, err := exec.RunPhase(ctx, c, sequence.Phase{
		Index: 1, CaseID: c.ID, Mode: sequence.ModeContinue,
		Stop: days(5), Suffix: "rest",
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)

	assert.Equal(t, base[0].Checksum, rest[0].Checksum,
		"a continuation from the day 6 restart must reproduce the 11 day run bit for bit")
}

func TestLocalExecutorHybridClone(t *testing.T) {
	ctx := context.Background()
	exec := NewLocalExecutor(io.Discard, io.Discard)

	producer, err := caseapi.Create(t.TempDir(), "pol.f09.A.ref", nil)
	require.NoError(t, err)
	base, err := exec.RunPhase(ctx, producer, sequence.Phase{
		Index: 0, CaseID: producer.ID, Mode: sequence.ModeStartup,
		Stop: days(11), Restart: days(6), Suffix: "base",
	})
	require.NoError(t, err)

	consumer, err := caseapi.Create(t.TempDir(), "pol.f09.A", nil)
	require.NoError(t, err)
	ref := sequence.CloneRef{CaseID: producer.ID, PhaseIndex: 0, Date: "0001-01-07"}
	require.NoError(t, exec.Clone(ctx, producer, consumer, ref))

	hybrid, err := exec.RunPhase(ctx, consumer, sequence.Phase{
		Index: 1, CaseID: consumer.ID, Mode: sequence.ModeHybrid,
		Stop: days(11), Suffix: "hybrid",
		CloneFrom: &ref,
	})
	require.NoError(t, err)
	require.Len(t, hybrid, 1)

	assert.Equal(t, base[0].Checksum, hybrid[0].Checksum,
		"a hybrid run resets the model date and must match the reference run")
}

func TestLocalExecutorBranchResumesTimeline(t *testing.T) {
	ctx := context.Background()
	exec := NewLocalExecutor(io.Discard, io.Discard)

	producer, err := caseapi.Create(t.TempDir(), "pol.f09.A.ref", nil)
	require.NoError(t, err)
	full, err := exec.RunPhase(ctx, producer, sequence.Phase{
		Index: 0, CaseID: producer.ID, Mode: sequence.ModeStartup,
		Stop: days(11), Restart: days(6), Suffix: "base",
	})
	require.NoError(t, err)

	consumer, err := caseapi.Create(t.TempDir(), "pol.f09.B", nil)
	require.NoError(t, err)
	ref := sequence.CloneRef{CaseID: producer.ID, PhaseIndex: 0, Date: "0001-01-07"}
	require.NoError(t, exec.Clone(ctx, producer, consumer, ref))

	branch, err := exec.RunPhase(ctx, consumer, sequence.Phase{
		Index: 1, CaseID: consumer.ID, Mode: sequence.ModeBranch,
		Stop: days(5), Suffix: "branch",
		CloneFrom: &ref,
	})
	require.NoError(t, err)

	assert.Equal(t, full[0].Checksum, branch[0].Checksum,
		"a branch keeps the donor's timeline: day 6 plus 5 more days lands on day 11")
}

func TestLocalExecutorBehaviors(t *testing.T) {
	ctx := context.Background()
	phase := sequence.Phase{Index: 0, Mode: sequence.ModeStartup, Stop: days(5), Suffix: "base"}

	t.Run("forced build failure", func(t *testing.T) {
		c, err := caseapi.Create(t.TempDir(), "pol.fail", nil)
		require.NoError(t, err)
		exec := NewLocalExecutor(io.Discard, io.Discard)
		exec.Behavior = recipe.BehaviorForceBuildFail
		require.Error(t, exec.Build(ctx, c))
	})

	t.Run("forced run failure", func(t *testing.T) {
		c, err := caseapi.Create(t.TempDir(), "pol.fail", nil)
		require.NoError(t, err)
		exec := NewLocalExecutor(io.Discard, io.Discard)
		exec.Behavior = recipe.BehaviorForceRunFail
		_, err = exec.RunPhase(ctx, c, phase)
		require.Error(t, err)
	})

	t.Run("forced run pass", func(t *testing.T) {
		c, err := caseapi.Create(t.TempDir(), "pol.pass", nil)
		require.NoError(t, err)
		exec := NewLocalExecutor(io.Discard, io.Discard)
		exec.Behavior = recipe.BehaviorForceRunPass
		arts, err := exec.RunPhase(ctx, c, phase)
		require.NoError(t, err)
		assert.Len(t, arts, 1)
	})

	t.Run("forced archive failure", func(t *testing.T) {
		c, err := caseapi.Create(t.TempDir(), "pol.fail", nil)
		require.NoError(t, err)
		exec := NewLocalExecutor(io.Discard, io.Discard)
		exec.Behavior = recipe.BehaviorForceArchiveFail
		require.Error(t, exec.Archive(ctx, c))
	})
}

func TestLocalExecutorBuildMarksCase(t *testing.T) {
	c, err := caseapi.Create(t.TempDir(), "pol.f09.A", nil)
	require.NoError(t, err)
	exec := NewLocalExecutor(io.Discard, io.Discard)

	require.NoError(t, exec.Build(context.Background(), c))
	assert.True(t, c.Config.True(config.KeyBuildComplete))
}

func TestLocalExecutorArchiveCopiesHistory(t *testing.T) {
	c, err := caseapi.Create(t.TempDir(), "pol.f09.A", config.Config{config.KeyDoutS: "TRUE"})
	require.NoError(t, err)
	exec := NewLocalExecutor(io.Discard, io.Discard)
	ctx := context.Background()

	_, err = exec.RunPhase(ctx, c, sequence.Phase{Index: 0, Mode: sequence.ModeStartup, Stop: days(5), Suffix: "base"})
	require.NoError(t, err)
	require.NoError(t, exec.Archive(ctx, c))

	entries, err := os.ReadDir(filepath.Join(c.Dir, "archive"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), ".hist.")
}

func TestModelDateRoundTrip(t *testing.T) {
	day, err := dayForDate("0001-01-07")
	require.NoError(t, err)
	assert.Equal(t, 6, day)
	assert.Equal(t, "0001-01-07", dateForDay(6))

	_, err = dayForDate("day seven")
	require.Error(t, err)
}

func TestCriterionUnitsMatchModelCalendar(t *testing.T) {
	// Month and year units land on calendar boundaries, so a criterion
	// expressed in either unit names the same date the model writes.
	assert.Equal(t, 30, daysOf(sequence.Criterion{Option: "nmonths", N: 1}))
	assert.Equal(t, "0001-02-01", dateForDay(daysOf(sequence.Criterion{Option: "nmonths", N: 1})))

	assert.Equal(t, 720, daysOf(sequence.Criterion{Option: "nyears", N: 2}))
	assert.Equal(t, "0003-01-01", dateForDay(daysOf(sequence.Criterion{Option: "nyears", N: 2})))
}
