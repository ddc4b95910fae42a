package submit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/polarsim/harness/internal/batch"
	"github.com/polarsim/harness/internal/caseapi"
	"github.com/polarsim/harness/internal/config"
)

// State is the submission state of a case.
type State int

const (
	StateIdle State = iota
	StateWaitingOnPrereq
	StateQueued
	StateRunning
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:            "IDLE",
	StateWaitingOnPrereq: "WAITING_ON_PREREQ",
	StateQueued:          "QUEUED",
	StateRunning:         "RUNNING",
	StateCompleted:       "COMPLETED",
	StateFailed:          "FAILED",
}

func (s State) String() string { return stateNames[s] }

// UnknownJobError reports a submission naming a job the case does not define.
type UnknownJobError struct {
	Case caseapi.ID
	Job  string
}

func (e *UnknownJobError) Error() string {
	return fmt.Sprintf("case %s defines no job named %q", e.Case, e.Job)
}

// PrereqNotFoundError reports a prerequisite job id the batch system does not
// recognize.
type PrereqNotFoundError struct {
	ID batch.JobID
}

func (e *PrereqNotFoundError) Error() string {
	return fmt.Sprintf("prerequisite job %s not found", e.ID)
}

// ResubmitBudgetExceededError reports a resubmission beyond the case's
// configured RESUBMIT budget. The budget never silently caps.
type ResubmitBudgetExceededError struct {
	Case caseapi.ID
}

func (e *ResubmitBudgetExceededError) Error() string {
	return fmt.Sprintf("case %s has no resubmissions left in its RESUBMIT budget", e.Case)
}

// Request carries one submission's parameters.
type Request struct {
	// Job is the job to submit; empty means the case's primary run job.
	Job string

	// Workflow, when false, submits exactly the named job: successor jobs
	// are skipped and RESUBMIT is ignored.
	Workflow bool

	// NoBatch forces local synchronous execution.
	NoBatch bool

	// Prereq makes the submission depend on an existing batch job. Setting
	// it also suppresses the staged-restart check, since the restart will
	// be produced by the prerequisite before this job starts.
	Prereq       batch.JobID
	AllowFailure bool

	// Resubmit marks this submission as the continuation of an in-progress
	// test rather than a fresh start.
	Resubmit bool

	// ResubmitImmediate enqueues the whole resubmit chain up front, using
	// the batch system's own dependency mechanism instead of having each
	// run submit its successor at completion.
	ResubmitImmediate bool

	SkipPreviewNamelist bool
	MailUser            string
	MailTypes           []string
	BatchArgs           string

	// Chksum verifies input data checksums rather than mere presence.
	Chksum bool

	// ClearOptions drops the persisted submit options before this
	// submission.
	ClearOptions bool

	// DryRun reports what would be submitted without enqueueing anything
	// or mutating durable state.
	DryRun bool
}

func (r Request) options() Options {
	return Options{
		SkipPreviewNamelist: r.SkipPreviewNamelist,
		MailUser:            r.MailUser,
		MailTypes:           r.MailTypes,
		BatchArgs:           r.BatchArgs,
	}
}

// SubmittedJob records one enqueued (or planned) chain link.
type SubmittedJob struct {
	Name         string
	ID           batch.JobID
	DependsOn    batch.JobID
	AllowFailure bool
}

// Outcome is the result of one submission.
type Outcome struct {
	State  State
	Local  bool
	DryRun bool
	Jobs   []SubmittedJob
}

// Controller is the per-case submission state machine. It decides whether a
// request runs locally or goes to the batch queue, builds the dependency
// chain for the job plus its workflow successors, and tracks the resubmit
// budget. A controller is single-threaded; concurrency exists only across
// cases.
type Controller struct {
	Case  *caseapi.Case
	Batch batch.Client
	Store *OptionsStore

	// RunJob executes one workflow job locally and blocks until it
	// finishes. Used on the no-batch path.
	RunJob func(ctx context.Context, job string) error

	state State
}

// NewController returns an idle controller for the case.
func NewController(c *caseapi.Case, client batch.Client, runJob func(ctx context.Context, job string) error) *Controller {
	return &Controller{
		Case:   c,
		Batch:  client,
		Store:  NewOptionsStore(c.Dir),
		RunJob: runJob,
		state:  StateIdle,
	}
}

// State reports the case's current submission state.
func (ctl *Controller) State() State { return ctl.state }

// Submit runs one submission request through the state machine. A failed
// validation leaves the case in its prior state and is safe to retry after
// fixing inputs.
func (ctl *Controller) Submit(ctx context.Context, req Request) (Outcome, error) {
	c := ctl.Case

	job := req.Job
	if job == "" {
		job = c.PrimaryJob()
	}
	if !c.HasJob(job) {
		return Outcome{State: ctl.state}, &UnknownJobError{Case: c.ID, Job: job}
	}

	if !c.Config.True(config.KeyBuildComplete) {
		return Outcome{State: ctl.state}, fmt.Errorf("case %s has not been built", c.ID)
	}

	explicit := req.options()
	if err := explicit.Validate(); err != nil {
		return Outcome{State: ctl.state}, err
	}

	var prereqStatus batch.Status
	if req.Prereq != "" {
		status, err := ctl.Batch.Status(ctx, req.Prereq)
		if err != nil {
			return Outcome{State: ctl.state}, &PrereqNotFoundError{ID: req.Prereq}
		}
		prereqStatus = status
	}

	remaining, err := ctl.resubmitBudget()
	if err != nil {
		return Outcome{State: ctl.state}, err
	}
	if req.Resubmit && remaining <= 0 {
		return Outcome{State: ctl.state}, &ResubmitBudgetExceededError{Case: c.ID}
	}

	if req.ClearOptions && !req.DryRun {
		if err := ctl.Store.Clear(); err != nil {
			return Outcome{State: ctl.state}, err
		}
	}
	persisted, err := ctl.Store.Load()
	if err != nil {
		return Outcome{State: ctl.state}, err
	}
	opts := explicit.MergeUnder(persisted)

	if !req.Resubmit && !req.DryRun {
		if err := ctl.Store.Save(explicit); err != nil {
			return Outcome{State: ctl.state}, err
		}
	}

	if req.Resubmit && !req.DryRun {
		if err := ctl.consumeResubmit(); err != nil {
			return Outcome{State: ctl.state}, err
		}
	}

	// A continuation must find its restart staged, unless a prerequisite
	// job will stage it before run time.
	if c.Config.True(config.KeyContinueRun) && req.Prereq == "" {
		if err := c.CheckStagedRestart(); err != nil {
			return Outcome{State: ctl.state}, err
		}
	}

	if err := c.VerifyInputData(req.Chksum); err != nil {
		return Outcome{State: ctl.state}, err
	}

	if !opts.SkipPreviewNamelist && !req.DryRun {
		if err := ctl.previewNamelists(); err != nil {
			return Outcome{State: ctl.state}, err
		}
	}

	chain := []string{job}
	// An externally managed workflow chains its own successors.
	if req.Workflow && !c.Config.True(config.KeyExternalWorkflow) {
		chain = append(chain, c.SuccessorJobs(job)...)
	}

	if req.NoBatch || ctl.Batch == nil {
		return ctl.runLocal(ctx, req, chain)
	}
	return ctl.enqueue(ctx, req, opts, chain, prereqStatus)
}

// resubmitBudget parses the case's remaining RESUBMIT budget. A value that is
// not a number is a configuration error, never a silent zero.
func (ctl *Controller) resubmitBudget() (int, error) {
	raw := ctl.Case.Config[config.KeyResubmit]
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("case %s has a malformed RESUBMIT value %q", ctl.Case.ID, raw)
	}
	return n, nil
}

// consumeResubmit spends one unit of the resubmit budget and applies the
// continuation side effect when the case asks for it. It never resets any
// accumulated phase state.
func (ctl *Controller) consumeResubmit() error {
	c := ctl.Case
	remaining, err := ctl.resubmitBudget()
	if err != nil {
		return err
	}
	if remaining <= 0 {
		return &ResubmitBudgetExceededError{Case: c.ID}
	}
	c.Config[config.KeyResubmit] = strconv.Itoa(remaining - 1)
	if c.Config.True(config.KeyResubmitSetsCR) {
		c.Config[config.KeyContinueRun] = "TRUE"
	}
	return c.Save()
}

// previewNamelists renders the effective configuration into the run directory
// the way the model will read it, so a bad override surfaces before any queue
// time is spent.
func (ctl *Controller) previewNamelists() error {
	c := ctl.Case
	data, err := yaml.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("failed to render namelists for %s: %w", c.ID, err)
	}
	path := filepath.Join(c.RunDir(), "namelists.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to render namelists for %s: %w", c.ID, err)
	}
	return nil
}

func (ctl *Controller) runLocal(ctx context.Context, req Request, chain []string) (Outcome, error) {
	out := Outcome{Local: true, DryRun: req.DryRun}
	if req.DryRun {
		for _, link := range chain {
			out.Jobs = append(out.Jobs, SubmittedJob{Name: link})
		}
		out.State = ctl.state
		return out, nil
	}

	ctl.state = StateRunning
	c := ctl.Case

	runChain := func() error {
		for _, link := range chain {
			id := batch.JobID("local." + uuid.NewString())
			log.Info().Str("case", string(c.ID)).Str("job", link).Str("id", string(id)).Msg("running job locally")
			out.Jobs = append(out.Jobs, SubmittedJob{Name: link, ID: id})
			if err := ctl.RunJob(ctx, link); err != nil {
				return fmt.Errorf("job %s of case %s failed: %w", link, c.ID, err)
			}
		}
		return nil
	}

	if err := runChain(); err != nil {
		ctl.state = StateFailed
		out.State = ctl.state
		return out, err
	}

	// Under no-batch a pending resubmission cannot be enqueued, so it runs
	// immediately in-process until the budget is spent.
	if req.Workflow {
		for {
			remaining, err := ctl.resubmitBudget()
			if err != nil {
				ctl.state = StateFailed
				out.State = ctl.state
				return out, err
			}
			if remaining <= 0 {
				break
			}
			if err := ctl.consumeResubmit(); err != nil {
				ctl.state = StateFailed
				out.State = ctl.state
				return out, err
			}
			if err := runChain(); err != nil {
				ctl.state = StateFailed
				out.State = ctl.state
				return out, err
			}
		}
	}

	ctl.state = StateCompleted
	out.State = ctl.state
	if err := ctl.recordJobIDs(out.Jobs); err != nil {
		return out, err
	}
	return out, nil
}

func (ctl *Controller) enqueue(ctx context.Context, req Request, opts Options, chain []string, prereqStatus batch.Status) (Outcome, error) {
	c := ctl.Case
	out := Outcome{DryRun: req.DryRun}

	rounds := 1
	if req.ResubmitImmediate && req.Workflow {
		remaining, err := ctl.resubmitBudget()
		if err != nil {
			return out, err
		}
		rounds += remaining
	}

	prev := req.Prereq
	headAllowFailure := req.AllowFailure
	for round := 0; round < rounds; round++ {
		if round > 0 && !req.DryRun {
			if err := ctl.consumeResubmit(); err != nil {
				return out, err
			}
		}
		for _, link := range chain {
			allowFailure := false
			if prev == req.Prereq && prev != "" {
				allowFailure = headAllowFailure
			}
			sub := SubmittedJob{Name: link, DependsOn: prev, AllowFailure: allowFailure}
			if req.DryRun {
				out.Jobs = append(out.Jobs, sub)
				// Planned ids are unknown; downstream links still
				// express the chain shape.
				prev = batch.JobID(link)
				continue
			}
			id, err := ctl.Batch.Enqueue(ctx, ctl.batchJob(link, opts), prev, allowFailure)
			if err != nil {
				ctl.state = StateFailed
				out.State = ctl.state
				return out, fmt.Errorf("failed to enqueue %s for case %s: %w", link, c.ID, err)
			}
			sub.ID = id
			out.Jobs = append(out.Jobs, sub)
			prev = id
		}
	}

	if req.DryRun {
		out.State = ctl.state
		return out, nil
	}

	ctl.state = StateQueued
	if req.Prereq != "" && !prereqStatus.Terminal() {
		ctl.state = StateWaitingOnPrereq
	}
	out.State = ctl.state
	if err := ctl.recordJobIDs(out.Jobs); err != nil {
		return out, err
	}
	return out, nil
}

func (ctl *Controller) batchJob(name string, opts Options) batch.Job {
	return batch.Job{
		Name:      fmt.Sprintf("%s.%s", ctl.Case.ID, name),
		Script:    filepath.Join(ctl.Case.Dir, "."+name),
		WorkDir:   ctl.Case.Dir,
		MailUser:  opts.MailUser,
		MailTypes: opts.MailTypes,
		ExtraArgs: opts.BatchArgs,
	}
}

// recordJobIDs stores the submitted job handles in the case configuration so
// a later status query can find them.
func (ctl *Controller) recordJobIDs(jobs []SubmittedJob) error {
	if len(jobs) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(jobs))
	for _, j := range jobs {
		pairs = append(pairs, fmt.Sprintf("%s:%s", j.Name, j.ID))
	}
	ctl.Case.Config[config.KeyJobIDs] = strings.Join(pairs, ",")
	return ctl.Case.Save()
}
