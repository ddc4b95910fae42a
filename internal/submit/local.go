package submit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/polarsim/harness/internal/caseapi"
	"github.com/polarsim/harness/internal/config"
	"github.com/polarsim/harness/internal/recipe"
	"github.com/polarsim/harness/internal/sequence"
)

// Executor runs the build, phase-execution, and clone steps of a case on the
// machine the harness itself runs on.
type Executor interface {
	Build(ctx context.Context, c *caseapi.Case) error
	RunPhase(ctx context.Context, c *caseapi.Case, phase sequence.Phase) ([]caseapi.Artifact, error)
	Clone(ctx context.Context, src *caseapi.Case, dst *caseapi.Case, ref sequence.CloneRef) error
	Archive(ctx context.Context, c *caseapi.Case) error
}

// LocalExecutor drives a deterministic stand-in model directly in the run
// directory. A case may carry executable hooks under <dir>/hooks (build, run,
// st_archive); when present they run through the shell before the model step,
// so a real model can be wired in without touching the harness.
type LocalExecutor struct {
	Behavior recipe.Behavior
	Stdout   io.Writer
	Stderr   io.Writer

	// SlowDelay is how long a slow-pass run stalls before succeeding.
	SlowDelay time.Duration
}

// NewLocalExecutor returns an executor with normal model behavior.
func NewLocalExecutor(stdout, stderr io.Writer) *LocalExecutor {
	return &LocalExecutor{
		Behavior: recipe.BehaviorNormal,
		Stdout:   stdout,
		Stderr:   stderr,
	}
}

// Build prepares the case for running. The stand-in model has no real build
// step beyond the hook, but the completion marker still gates submission.
func (e *LocalExecutor) Build(ctx context.Context, c *caseapi.Case) error {
	if e.Behavior == recipe.BehaviorForceBuildFail {
		return fmt.Errorf("build of %s failed: compiler exited with status 2", c.ID)
	}
	if err := e.runHook(ctx, c, "build"); err != nil {
		return fmt.Errorf("build of %s failed: %w", c.ID, err)
	}
	c.Config[config.KeyBuildComplete] = "TRUE"
	return c.Save()
}

// RunPhase advances the model through one phase and returns the history
// artifacts it wrote.
func (e *LocalExecutor) RunPhase(ctx context.Context, c *caseapi.Case, phase sequence.Phase) ([]caseapi.Artifact, error) {
	switch e.Behavior {
	case recipe.BehaviorForceRunFail:
		return nil, fmt.Errorf("run of %s failed: model aborted at initialization", phase.ID())
	case recipe.BehaviorSlowPass:
		select {
		case <-time.After(e.SlowDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case recipe.BehaviorForceRunPass:
		// Skip the hooks so a broken external script cannot spoil a
		// forced pass.
	default:
		if err := e.runHook(ctx, c, "run"); err != nil {
			return nil, fmt.Errorf("run of %s failed: %w", phase.ID(), err)
		}
	}

	startDay, err := e.startDay(c, phase)
	if err != nil {
		return nil, err
	}
	endDay := startDay + daysOf(phase.Stop)

	log.Info().
		Str("phase", phase.ID()).
		Str("mode", phase.Mode.String()).
		Int("start_day", startDay).
		Int("end_day", endDay).
		Msg("running model")

	if !phase.Restart.IsZero() && startDay+daysOf(phase.Restart) < endDay {
		// The requested mid-run restart stays current in the pointer: a
		// continuation resumes from it, not from the end of the run.
		restDay := startDay + daysOf(phase.Restart)
		payload := []byte(fmt.Sprintf("day=%d\n", restDay))
		if _, err := c.WriteRestart(dateForDay(restDay), payload); err != nil {
			return nil, err
		}
	} else {
		// Without one, an end-of-run restart allows a later continuation
		// or branch.
		payload := []byte(fmt.Sprintf("day=%d\n", endDay))
		if _, err := c.WriteRestart(dateForDay(endDay), payload); err != nil {
			return nil, err
		}
	}

	art, err := c.WriteArtifact(phase.Index, phase.Suffix, modelFields(endDay))
	if err != nil {
		return nil, err
	}
	return []caseapi.Artifact{art}, nil
}

// Clone stages the restart named by ref from the producer case into the
// consumer's run directory, under the consumer's own name, and points the
// consumer's restart pointer at it.
func (e *LocalExecutor) Clone(ctx context.Context, src *caseapi.Case, dst *caseapi.Case, ref sequence.CloneRef) error {
	path, err := src.RestartArtifact(ref.Date)
	if err != nil {
		return fmt.Errorf("clone into %s: %w", dst.ID, err)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("clone into %s: %w", dst.ID, err)
	}
	if _, err := dst.WriteRestart(ref.Date, payload); err != nil {
		return fmt.Errorf("clone into %s: %w", dst.ID, err)
	}
	return nil
}

// Archive moves history artifacts to the case's short-term archive directory.
// Restarts stay in the run directory so continuations keep working.
func (e *LocalExecutor) Archive(ctx context.Context, c *caseapi.Case) error {
	if e.Behavior == recipe.BehaviorForceArchiveFail {
		return fmt.Errorf("archive of %s failed: destination not writable", c.ID)
	}
	if err := e.runHook(ctx, c, "st_archive"); err != nil {
		return fmt.Errorf("archive of %s failed: %w", c.ID, err)
	}
	if !c.Config.True(config.KeyDoutS) {
		return nil
	}

	archiveDir := filepath.Join(c.Dir, "archive")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("archive of %s failed: %w", c.ID, err)
	}
	entries, err := os.ReadDir(c.RunDir())
	if err != nil {
		return fmt.Errorf("archive of %s failed: %w", c.ID, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), ".hist.") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.RunDir(), entry.Name()))
		if err != nil {
			return fmt.Errorf("archive of %s failed: %w", c.ID, err)
		}
		if err := os.WriteFile(filepath.Join(archiveDir, entry.Name()), data, 0644); err != nil {
			return fmt.Errorf("archive of %s failed: %w", c.ID, err)
		}
	}
	return nil
}

func (e *LocalExecutor) runHook(ctx context.Context, c *caseapi.Case, name string) error {
	hook := filepath.Join(c.Dir, "hooks", name)
	info, err := os.Stat(hook)
	if err != nil || info.IsDir() {
		return nil
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", hook)
	cmd.Dir = c.RunDir()
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("hook %s: %w", name, err)
	}
	return nil
}

// startDay resolves the simulated day a phase begins at. Startup and hybrid
// runs reset the model date; continue and branch runs resume the timeline of
// the restart they start from.
func (e *LocalExecutor) startDay(c *caseapi.Case, phase sequence.Phase) (int, error) {
	switch phase.Mode {
	case sequence.ModeStartup, sequence.ModeHybrid:
		return 0, nil
	case sequence.ModeBranch:
		if phase.CloneFrom == nil {
			return 0, fmt.Errorf("branch phase %s has no clone reference", phase.ID())
		}
		return dayForDate(phase.CloneFrom.Date)
	case sequence.ModeContinue:
		return stagedRestartDay(c)
	}
	return 0, fmt.Errorf("phase %s has unknown mode %d", phase.ID(), phase.Mode)
}

// stagedRestartDay reads the restart currently staged in the run directory and
// returns the simulated day recorded inside it.
func stagedRestartDay(c *caseapi.Case) (int, error) {
	entries, err := os.ReadDir(c.RunDir())
	if err != nil {
		return 0, fmt.Errorf("cannot resume %s: %w", c.ID, err)
	}
	var pointer string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "rpointer.") {
			pointer = filepath.Join(c.RunDir(), entry.Name())
			break
		}
	}
	if pointer == "" {
		return 0, fmt.Errorf("cannot resume %s: no restart pointer in %s", c.ID, c.RunDir())
	}

	f, err := os.Open(pointer)
	if err != nil {
		return 0, fmt.Errorf("cannot resume %s: %w", c.ID, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, fmt.Errorf("cannot resume %s: restart pointer is empty", c.ID)
	}
	target := strings.TrimSpace(scanner.Text())

	rf, err := os.Open(filepath.Join(c.RunDir(), target))
	if err != nil {
		return 0, fmt.Errorf("cannot resume %s: %w", c.ID, err)
	}
	defer rf.Close()
	rs := bufio.NewScanner(rf)
	for rs.Scan() {
		line := strings.TrimSpace(rs.Text())
		if day, ok := strings.CutPrefix(line, "day="); ok {
			return strconv.Atoi(day)
		}
	}
	return 0, fmt.Errorf("cannot resume %s: restart %s records no day", c.ID, target)
}

// daysOf converts a stop or restart criterion into simulated days on the
// model's 360-day calendar.
func daysOf(cr sequence.Criterion) int {
	switch cr.Option {
	case "nmonths":
		return 30 * cr.N
	case "nyears":
		return 360 * cr.N
	default:
		return cr.N
	}
}

// dateForDay renders a simulated day count as a model date. Day zero is the
// start of year one.
func dateForDay(day int) string {
	y := 1 + day/360
	rem := day % 360
	return fmt.Sprintf("%04d-%02d-%02d", y, 1+rem/30, 1+rem%30)
}

// dayForDate is the inverse of dateForDay.
func dayForDate(date string) (int, error) {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed model date %q", date)
	}
	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, fmt.Errorf("malformed model date %q", date)
	}
	return (y-1)*360 + (m-1)*30 + (d - 1), nil
}

// modelFields are the diagnostics the stand-in model reports at a simulated
// day. Every value is a pure function of the day so an exact continuation
// reproduces the uninterrupted run bit for bit.
func modelFields(day int) map[string]float64 {
	d := float64(day)
	return map[string]float64{
		"TREFHT": 287.42 + 0.013*d,
		"TSOI":   275.80 + 0.002*d,
		"H2OSNO": 41.5 - 0.08*d,
		"FSNS":   182.1 + 0.31*d,
		"QFLX":   2.9e-05 * d,
	}
}
