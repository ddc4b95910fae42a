package caseapi

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/polarsim/harness/internal/config"
)

const restartPointerName = "rpointer.drv"

// WriteRestart records a restart artifact for the named simulated date and
// repoints the restart pointer at it.
func (c *Case) WriteRestart(date string, payload []byte) (string, error) {
	name := RestartFileName(c.ID, date)
	path := filepath.Join(c.RunDir(), name)
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return "", fmt.Errorf("failed to write restart %s: %w", name, err)
	}
	pointer := filepath.Join(c.RunDir(), c.restartPointerName())
	if err := os.WriteFile(pointer, []byte(name+"\n"), 0644); err != nil {
		return "", fmt.Errorf("failed to update restart pointer: %w", err)
	}
	return path, nil
}

// RestartArtifact returns the path of the restart written for date, verifying
// it exists on disk.
func (c *Case) RestartArtifact(date string) (string, error) {
	path := filepath.Join(c.RunDir(), RestartFileName(c.ID, date))
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("restart artifact for %s at %s is not on disk: %w", c.ID, date, err)
	}
	return path, nil
}

func (c *Case) restartPointerName() string {
	// Multi-instance cases point at the first instance's driver restart.
	pointer := restartPointerName
	if n, err := strconv.Atoi(c.Config[config.KeyNInst]); err == nil && n > 1 {
		pointer += "_0001"
	}
	return pointer
}

// CheckStagedRestart verifies that a continuation run actually has restart
// state staged: the run directory exists, the restart pointer is present, and
// the file it names exists and belongs to this case. Submissions carrying a
// prerequisite job skip this check, since the restart will be produced by the
// prerequisite before the job starts.
func (c *Case) CheckStagedRestart() error {
	runDir := c.RunDir()
	if _, err := os.Stat(runDir); err != nil {
		return fmt.Errorf("continuation requested but run directory %s does not exist", runDir)
	}

	pointer := filepath.Join(runDir, c.restartPointerName())
	f, err := os.Open(pointer)
	if err != nil {
		return fmt.Errorf("continuation requested but no restart pointer is staged in %s", runDir)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return fmt.Errorf("restart pointer %s is empty", pointer)
	}
	target := strings.TrimSpace(scanner.Text())

	if !strings.HasPrefix(target, string(c.ID)) {
		return fmt.Errorf("restart pointer names %s, which does not belong to case %s", target, c.ID)
	}
	if _, err := os.Stat(filepath.Join(runDir, target)); err != nil {
		return fmt.Errorf("restart pointer names %s, which is not present in %s", target, runDir)
	}
	return nil
}
