package submit

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarsim/harness/internal/batch"
	"github.com/polarsim/harness/internal/caseapi"
	"github.com/polarsim/harness/internal/config"
)

func newBuiltCase(t *testing.T, extra config.Config) *caseapi.Case {
	t.Helper()
	cfg := config.Config{config.KeyBuildComplete: "TRUE"}
	for k, v := range extra {
		cfg[k] = v
	}
	c, err := caseapi.Create(t.TempDir(), "pol.f09.A", cfg)
	require.NoError(t, err)
	return c
}

type runRecorder struct {
	jobs []string
	fail map[string]error
}

func (r *runRecorder) run(_ context.Context, job string) error {
	r.jobs = append(r.jobs, job)
	if err := r.fail[job]; err != nil {
		return err
	}
	return nil
}

func TestSubmitUnknownJob(t *testing.T) {
	c := newBuiltCase(t, nil)
	ctl := NewController(c, batch.NewFake(), nil)

	_, err := ctl.Submit(context.Background(), Request{Job: "case.compress", Workflow: true})

	var unknown *UnknownJobError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "case.compress", unknown.Job)
	assert.Equal(t, StateIdle, ctl.State(), "a failed validation leaves the case in its prior state")
}

func TestSubmitRequiresCompletedBuild(t *testing.T) {
	c, err := caseapi.Create(t.TempDir(), "pol.f09.A", nil)
	require.NoError(t, err)
	ctl := NewController(c, batch.NewFake(), nil)

	_, err = ctl.Submit(context.Background(), Request{Workflow: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not been built")
}

func TestSubmitWorkflowChainsSuccessor(t *testing.T) {
	c := newBuiltCase(t, nil)
	fake := batch.NewFake()
	ctl := NewController(c, fake, nil)

	out, err := ctl.Submit(context.Background(), Request{Workflow: true})
	require.NoError(t, err)

	require.Len(t, fake.Jobs, 2)
	assert.Equal(t, "pol.f09.A.case.run", fake.Jobs[0].Job.Name)
	assert.Equal(t, "pol.f09.A.case.st_archive", fake.Jobs[1].Job.Name)
	assert.Equal(t, fake.Jobs[0].ID, fake.Jobs[1].DependsOn, "archiver runs after the run job")
	assert.False(t, fake.Jobs[1].AllowFailure)
	assert.Equal(t, StateQueued, out.State)
}

func TestSubmitOnlyJobNeverEnqueuesSuccessor(t *testing.T) {
	c := newBuiltCase(t, config.Config{config.KeyResubmit: "2"})
	fake := batch.NewFake()
	ctl := NewController(c, fake, nil)

	_, err := ctl.Submit(context.Background(), Request{Job: "case.run", Workflow: false, ResubmitImmediate: true})
	require.NoError(t, err)

	require.Len(t, fake.Jobs, 1, "workflow=false submits exactly the named job")
	assert.Equal(t, "2", c.Config[config.KeyResubmit], "workflow=false ignores RESUBMIT")
}

func TestSubmitExternalWorkflowSkipsChaining(t *testing.T) {
	c := newBuiltCase(t, config.Config{config.KeyExternalWorkflow: "TRUE"})
	fake := batch.NewFake()
	ctl := NewController(c, fake, nil)

	_, err := ctl.Submit(context.Background(), Request{Workflow: true})
	require.NoError(t, err)

	require.Len(t, fake.Jobs, 1, "an external workflow manager chains its own successors")
}

func TestSubmitPrereqDependency(t *testing.T) {
	tests := []struct {
		name         string
		allowFailure bool
	}{
		{name: "blocks on prerequisite success", allowFailure: false},
		{name: "runs regardless of prerequisite outcome", allowFailure: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newBuiltCase(t, nil)
			fake := batch.NewFake()
			fake.SetStatus("ext.77", batch.StatusRunning)
			ctl := NewController(c, fake, nil)

			out, err := ctl.Submit(context.Background(), Request{
				Workflow:     true,
				Prereq:       "ext.77",
				AllowFailure: tt.allowFailure,
			})
			require.NoError(t, err)

			require.NotEmpty(t, fake.Jobs)
			assert.Equal(t, batch.JobID("ext.77"), fake.Jobs[0].DependsOn)
			assert.Equal(t, tt.allowFailure, fake.Jobs[0].AllowFailure)
			assert.Equal(t, StateWaitingOnPrereq, out.State)
		})
	}
}

func TestSubmitPrereqNotFound(t *testing.T) {
	c := newBuiltCase(t, nil)
	ctl := NewController(c, batch.NewFake(), nil)

	_, err := ctl.Submit(context.Background(), Request{Workflow: true, Prereq: "ext.404"})

	var notFound *PrereqNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, batch.JobID("ext.404"), notFound.ID)
}

func TestSubmitPrereqSuppressesStagedRestartCheck(t *testing.T) {
	c := newBuiltCase(t, config.Config{config.KeyContinueRun: "TRUE"})
	fake := batch.NewFake()
	fake.SetStatus("ext.9", batch.StatusSucceeded)
	ctl := NewController(c, fake, nil)

	// No restart is staged, so a continuation without a prerequisite is
	// rejected outright.
	_, err := ctl.Submit(context.Background(), Request{Workflow: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restart")

	// The prerequisite will stage the restart before run time.
	_, err = ctl.Submit(context.Background(), Request{Workflow: true, Prereq: "ext.9"})
	require.NoError(t, err)
}

func TestSubmitResubmitBudget(t *testing.T) {
	c := newBuiltCase(t, config.Config{config.KeyResubmit: "1"})
	fake := batch.NewFake()
	fake.SetStatus("ext.1", batch.StatusSucceeded)
	ctl := NewController(c, fake, nil)

	// The single budgeted resubmission succeeds and spends the budget. The
	// prerequisite keeps the staged-restart check out of the way.
	_, err := ctl.Submit(context.Background(), Request{Workflow: true, Resubmit: true, Prereq: "ext.1"})
	require.NoError(t, err)
	assert.Equal(t, "0", c.Config[config.KeyResubmit])

	// The next resubmission raises, never silently caps.
	_, err = ctl.Submit(context.Background(), Request{Workflow: true, Resubmit: true, Prereq: "ext.1"})
	var exceeded *ResubmitBudgetExceededError
	require.ErrorAs(t, err, &exceeded)
}

func TestSubmitMalformedResubmitValueIsAnError(t *testing.T) {
	c := newBuiltCase(t, config.Config{config.KeyResubmit: "several"})
	fake := batch.NewFake()
	ctl := NewController(c, fake, nil)

	// A garbage budget is a configuration error, not a zero.
	_, err := ctl.Submit(context.Background(), Request{Workflow: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESUBMIT")
	assert.Empty(t, fake.Jobs)
	assert.Equal(t, StateIdle, ctl.State())
}

func TestSubmitResubmitSetsContinueRun(t *testing.T) {
	c := newBuiltCase(t, config.Config{
		config.KeyResubmit:       "1",
		config.KeyResubmitSetsCR: "TRUE",
	})
	fake := batch.NewFake()
	fake.SetStatus("ext.1", batch.StatusSucceeded)
	ctl := NewController(c, fake, nil)

	_, err := ctl.Submit(context.Background(), Request{Workflow: true, Resubmit: true, Prereq: "ext.1"})
	require.NoError(t, err)

	assert.Equal(t, "TRUE", c.Config[config.KeyContinueRun])

	reopened, err := caseapi.Open(c.Dir)
	require.NoError(t, err)
	assert.Equal(t, "TRUE", reopened.Config[config.KeyContinueRun], "continuation state survives the process")
}

func TestSubmitResubmitImmediateEnqueuesWholeChain(t *testing.T) {
	c := newBuiltCase(t, config.Config{config.KeyResubmit: "2"})
	fake := batch.NewFake()
	ctl := NewController(c, fake, nil)

	_, err := ctl.Submit(context.Background(), Request{Workflow: true, ResubmitImmediate: true})
	require.NoError(t, err)

	// Three rounds of run + archive, linked by batch dependencies.
	require.Len(t, fake.Jobs, 6)
	assert.Equal(t, fake.Jobs[1].ID, fake.Jobs[2].DependsOn, "second round head waits on first round tail")
	assert.Equal(t, fake.Jobs[3].ID, fake.Jobs[4].DependsOn)
	assert.Equal(t, "0", c.Config[config.KeyResubmit], "the whole budget is consumed up front")
}

func TestSubmitNoBatchRunsChainLocally(t *testing.T) {
	c := newBuiltCase(t, nil)
	rec := &runRecorder{}
	ctl := NewController(c, batch.NewFake(), rec.run)

	out, err := ctl.Submit(context.Background(), Request{Workflow: true, NoBatch: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"case.run", "case.st_archive"}, rec.jobs)
	assert.True(t, out.Local)
	assert.Equal(t, StateCompleted, out.State)
}

func TestSubmitNoBatchRunsResubmitsInProcess(t *testing.T) {
	c := newBuiltCase(t, config.Config{config.KeyResubmit: "2"})
	rec := &runRecorder{}
	ctl := NewController(c, batch.NewFake(), rec.run)

	_, err := ctl.Submit(context.Background(), Request{Workflow: true, NoBatch: true})
	require.NoError(t, err)

	assert.Len(t, rec.jobs, 6, "initial chain plus two in-process resubmissions")
	assert.Equal(t, "0", c.Config[config.KeyResubmit])
}

func TestSubmitNoBatchFailureStopsChain(t *testing.T) {
	c := newBuiltCase(t, nil)
	rec := &runRecorder{fail: map[string]error{"case.run": errors.New("model aborted")}}
	ctl := NewController(c, batch.NewFake(), rec.run)

	out, err := ctl.Submit(context.Background(), Request{Workflow: true, NoBatch: true})
	require.Error(t, err)

	assert.Equal(t, []string{"case.run"}, rec.jobs, "the archiver never runs after a failed run")
	assert.Equal(t, StateFailed, out.State)
}

func TestSubmitDryRunTouchesNothing(t *testing.T) {
	c := newBuiltCase(t, config.Config{config.KeyResubmit: "1"})
	fake := batch.NewFake()
	ctl := NewController(c, fake, nil)

	out, err := ctl.Submit(context.Background(), Request{Workflow: true, DryRun: true, MailUser: "ops@example.org"})
	require.NoError(t, err)

	assert.Empty(t, fake.Jobs, "a dry run enqueues nothing")
	assert.Len(t, out.Jobs, 2)
	assert.True(t, out.DryRun)
	assert.Equal(t, "1", c.Config[config.KeyResubmit], "a dry run spends no budget")
	assert.Equal(t, StateIdle, ctl.State())

	persisted, err := ctl.Store.Load()
	require.NoError(t, err)
	assert.True(t, persisted.IsZero(), "a dry run persists no options")
}

func TestSubmitPersistsOptionsForLaterResubmission(t *testing.T) {
	c := newBuiltCase(t, config.Config{config.KeyResubmit: "1"})
	fake := batch.NewFake()
	fake.SetStatus("ext.1", batch.StatusSucceeded)
	ctl := NewController(c, fake, nil)

	_, err := ctl.Submit(context.Background(), Request{
		Workflow:  true,
		MailUser:  "ops@example.org",
		MailTypes: []string{"fail"},
	})
	require.NoError(t, err)

	// The resubmission passes no flags; the persisted record supplies them.
	_, err = ctl.Submit(context.Background(), Request{Workflow: true, Resubmit: true, Prereq: "ext.1"})
	require.NoError(t, err)

	resubmitted := fake.Jobs[len(fake.Jobs)-2]
	assert.Equal(t, "ops@example.org", resubmitted.Job.MailUser)
	assert.Equal(t, []string{"fail"}, resubmitted.Job.MailTypes)
}

func TestSubmitClearOptionsDropsRecord(t *testing.T) {
	c := newBuiltCase(t, nil)
	ctl := NewController(c, batch.NewFake(), nil)

	_, err := ctl.Submit(context.Background(), Request{Workflow: true, BatchArgs: "-q debug"})
	require.NoError(t, err)

	_, err = ctl.Submit(context.Background(), Request{Workflow: true, ClearOptions: true})
	require.NoError(t, err)

	persisted, err := ctl.Store.Load()
	require.NoError(t, err)
	assert.True(t, persisted.IsZero())
}

func TestSubmitRecordsJobIDs(t *testing.T) {
	c := newBuiltCase(t, nil)
	fake := batch.NewFake()
	ctl := NewController(c, fake, nil)

	_, err := ctl.Submit(context.Background(), Request{Workflow: true})
	require.NoError(t, err)

	assert.Equal(t,
		fmt.Sprintf("case.run:%s,case.st_archive:%s", fake.Jobs[0].ID, fake.Jobs[1].ID),
		c.Config[config.KeyJobIDs])
}

func TestSubmitBatchArgsReachTheQueue(t *testing.T) {
	c := newBuiltCase(t, nil)
	fake := batch.NewFake()
	ctl := NewController(c, fake, nil)

	_, err := ctl.Submit(context.Background(), Request{Workflow: true, BatchArgs: "-q debug -l walltime=02:00"})
	require.NoError(t, err)

	require.NotEmpty(t, fake.Jobs)
	assert.Equal(t, "-q debug -l walltime=02:00", fake.Jobs[0].Job.ExtraArgs)
}
