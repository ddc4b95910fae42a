package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/polarsim/harness/internal/batch"
	"github.com/polarsim/harness/internal/caseapi"
	"github.com/polarsim/harness/internal/config"
	"github.com/polarsim/harness/internal/submit"
)

var (
	submitCaseDir           string
	submitJob               string
	submitOnlyJob           string
	submitNoBatch           bool
	submitPrereq            string
	submitAllowFailure      bool
	submitResubmit          bool
	submitResubmitImmediate bool
	submitSkipPNL           bool
	submitMailUser          string
	submitMailTypes         []string
	submitBatchArgs         string
	submitChksum            bool
	submitClearOptions      bool
	submitDryRun            bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a case's workflow to the batch system or run it locally",
	Long: "Submit the case's primary run job (or a named job) as the head of its workflow\n" +
		"chain. Mail and batch options are persisted with the case so a batch-scheduled\n" +
		"resubmission behaves as if the original flags were passed again.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitCase(cmd.Context())
	},
}

func registerSubmitCommand(root *cobra.Command) {
	root.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitCaseDir, "case-dir", ".", "Case directory")
	submitCmd.Flags().StringVarP(&submitJob, "job", "j", "", "Job to run first in the workflow (default: the primary run job)")
	submitCmd.Flags().StringVar(&submitOnlyJob, "only-job", "", "Run only this job; skip successors and ignore RESUBMIT")
	submitCmd.Flags().BoolVar(&submitNoBatch, "no-batch", false, "Run locally even on a batch-capable machine")
	submitCmd.Flags().StringVar(&submitPrereq, "prereq", "", "Batch job id this submission depends on")
	submitCmd.Flags().BoolVar(&submitAllowFailure, "allow-failure", false, "Run regardless of the prerequisite's outcome")
	submitCmd.Flags().BoolVar(&submitResubmit, "resubmit", false, "Continue an in-progress test rather than starting over")
	submitCmd.Flags().BoolVar(&submitResubmitImmediate, "resubmit-immediate", false, "Enqueue the whole resubmit chain up front via batch dependencies")
	submitCmd.Flags().BoolVar(&submitSkipPNL, "skip-preview-namelist", false, "Skip the namelist preview before submission")
	submitCmd.Flags().StringVarP(&submitMailUser, "mail-user", "M", "", "Address for batch mail notifications")
	submitCmd.Flags().StringSliceVarP(&submitMailTypes, "mail-type", "m", nil, "Batch mail events (begin/end/fail)")
	submitCmd.Flags().StringVar(&submitBatchArgs, "batch-args", "", "Arguments passed through to the batch submit command")
	submitCmd.Flags().BoolVar(&submitChksum, "chksum", false, "Verify input data checksums, not just presence")
	submitCmd.Flags().BoolVar(&submitClearOptions, "clear-options", false, "Drop the persisted submit options first")
	submitCmd.Flags().BoolVar(&submitDryRun, "dry-run", false, "Report what would be submitted without enqueueing")
	submitCmd.MarkFlagsMutuallyExclusive("job", "only-job")
}

func submitCase(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := caseapi.Open(submitCaseDir)
	if err != nil {
		return err
	}

	req := submit.Request{
		Job:                 submitJob,
		Workflow:            true,
		NoBatch:             submitNoBatch,
		Prereq:              batch.JobID(submitPrereq),
		AllowFailure:        submitAllowFailure,
		Resubmit:            submitResubmit,
		ResubmitImmediate:   submitResubmitImmediate,
		SkipPreviewNamelist: submitSkipPNL,
		MailUser:            submitMailUser,
		MailTypes:           submitMailTypes,
		BatchArgs:           submitBatchArgs,
		Chksum:              submitChksum,
		ClearOptions:        submitClearOptions,
		DryRun:              submitDryRun,
	}
	if submitOnlyJob != "" {
		req.Job = submitOnlyJob
		req.Workflow = false
	}

	client, err := batch.ForSystem(c.Config[config.KeyBatchSystem])
	if err != nil {
		return err
	}

	ctl := submit.NewController(c, client, scriptRunner(c))
	out, err := ctl.Submit(ctx, req)
	if err != nil {
		return err
	}

	if out.DryRun {
		for _, j := range out.Jobs {
			line := fmt.Sprintf("would submit %s", j.Name)
			if j.DependsOn != "" {
				line += fmt.Sprintf(" (after %s)", j.DependsOn)
			}
			fmt.Println(line)
		}
		return nil
	}

	for _, j := range out.Jobs {
		fmt.Printf("submitted %s as %s\n", j.Name, j.ID)
	}
	fmt.Printf("case %s is %s\n", c.ID, out.State)
	return nil
}

// scriptRunner executes a workflow job's case script in-process, for the
// no-batch path. The script carries the same name the batch system would
// invoke.
func scriptRunner(c *caseapi.Case) func(ctx context.Context, job string) error {
	return func(ctx context.Context, job string) error {
		script := filepath.Join(c.Dir, "."+job)
		if _, err := os.Stat(script); err != nil {
			return fmt.Errorf("case %s has no script for job %s", c.ID, job)
		}
		cmd := exec.CommandContext(ctx, "sh", "-c", script)
		cmd.Dir = c.RunDir()
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("job %s failed: %w", job, err)
		}
		return nil
	}
}
