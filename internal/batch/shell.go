package batch

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// ShellClient drives a PBS/Slurm-like scheduler through its command line
// tools. The submit command must print the new job id on its first line of
// output; the status command must print one of the scheduler's state words.
type ShellClient struct {
	// SubmitCmd is the submission executable, e.g. "qsub" or "sbatch".
	SubmitCmd string
	// StatusCmd reports a job's state given its id, e.g. "qstat" with the
	// appropriate format flags baked in via StatusArgs.
	StatusCmd  string
	StatusArgs []string

	// IDIndex is the whitespace field of the submit command's first output
	// line that carries the job id. qsub prints the id alone; sbatch prints
	// "Submitted batch job <id>".
	IDIndex int

	// DependFlag formats the dependency argument, e.g.
	// "-W depend=afterok:%s". AllowFailureFlag is used instead when the
	// dependency must not block on the prerequisite's outcome, e.g.
	// "-W depend=afterany:%s".
	DependFlag       string
	AllowFailureFlag string
}

// NewPBSClient returns a client wired for PBS-style tooling.
func NewPBSClient() *ShellClient {
	return &ShellClient{
		SubmitCmd:        "qsub",
		StatusCmd:        "qstat",
		StatusArgs:       []string{"-f"},
		DependFlag:       "-W depend=afterok:%s",
		AllowFailureFlag: "-W depend=afterany:%s",
	}
}

// NewSlurmClient returns a client wired for Slurm tooling.
func NewSlurmClient() *ShellClient {
	return &ShellClient{
		SubmitCmd:        "sbatch",
		StatusCmd:        "squeue",
		StatusArgs:       []string{"-h", "-o", "%T", "-j"},
		IDIndex:          3,
		DependFlag:       "--dependency=afterok:%s",
		AllowFailureFlag: "--dependency=afterany:%s",
	}
}

// ForSystem returns the client for the case's BATCH_SYSTEM value. An empty
// value defaults to PBS; "none" yields no client, which sends submissions
// down the local execution path.
func ForSystem(name string) (Client, error) {
	switch strings.ToLower(name) {
	case "", "pbs":
		return NewPBSClient(), nil
	case "slurm":
		return NewSlurmClient(), nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown batch system %q", name)
}

// Enqueue submits the job script and parses the assigned job id from the
// scheduler's stdout.
func (s *ShellClient) Enqueue(ctx context.Context, job Job, dependsOn JobID, allowFailure bool) (JobID, error) {
	args := []string{}
	if dependsOn != "" {
		flag := s.DependFlag
		if allowFailure {
			flag = s.AllowFailureFlag
		}
		args = append(args, strings.Fields(fmt.Sprintf(flag, dependsOn))...)
	}
	if job.MailUser != "" {
		args = append(args, "-M", job.MailUser)
	}
	if len(job.MailTypes) > 0 {
		args = append(args, "-m", mailTypeLetters(job.MailTypes))
	}
	if job.ExtraArgs != "" {
		args = append(args, strings.Fields(job.ExtraArgs)...)
	}
	args = append(args, job.Script)

	cmd := exec.CommandContext(ctx, s.SubmitCmd, args...)
	cmd.Dir = job.WorkDir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to submit job %s: %w", job.Name, err)
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return "", fmt.Errorf("scheduler returned no job id for %s", job.Name)
	}
	fields := strings.Fields(lines[0])
	if s.IDIndex >= len(fields) {
		return "", fmt.Errorf("cannot parse job id for %s from %q", job.Name, lines[0])
	}
	id := JobID(fields[s.IDIndex])

	log.Info().Str("job", job.Name).Str("job_id", string(id)).Msg("submitted to batch system")
	return id, nil
}

// Status queries the scheduler for a job's state. A job the scheduler no
// longer knows is reported as succeeded, matching the common PBS behavior of
// forgetting finished jobs.
func (s *ShellClient) Status(ctx context.Context, id JobID) (Status, error) {
	args := append(append([]string{}, s.StatusArgs...), string(id))
	cmd := exec.CommandContext(ctx, s.StatusCmd, args...)
	output, err := cmd.Output()
	if err != nil {
		return StatusSucceeded, nil
	}

	text := strings.ToLower(strings.TrimSpace(string(output)))
	if text == "" {
		// squeue drops finished jobs from its listing without an error.
		return StatusSucceeded, nil
	}
	switch {
	case strings.Contains(text, "job_state = r") || strings.Contains(text, "running"):
		return StatusRunning, nil
	case strings.Contains(text, "job_state = q") || strings.Contains(text, "pending"):
		return StatusPending, nil
	case strings.Contains(text, "job_state = f") || strings.Contains(text, "completed"):
		return StatusSucceeded, nil
	case strings.Contains(text, "failed"):
		return StatusFailed, nil
	}
	return StatusUnknown, nil
}

func mailTypeLetters(types []string) string {
	var sb strings.Builder
	for _, t := range types {
		switch t {
		case "begin":
			sb.WriteByte('b')
		case "end":
			sb.WriteByte('e')
		case "fail":
			sb.WriteByte('a')
		}
	}
	return sb.String()
}
