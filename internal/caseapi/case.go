// Package caseapi models the harness-facing surface of a simulation case: its
// durable configuration, its run directory, and the artifacts a run produces.
// The simulation itself is an external collaborator; this package only reads
// and writes the case directory contract.
package caseapi

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/polarsim/harness/internal/config"
	"gopkg.in/yaml.v3"
)

// ID identifies one configured case.
type ID string

const caseFileName = "case.yaml"

// Case is one configured instance of the simulation plus its run-time state.
// A case owns its directory exclusively; the harness assumes single-writer
// discipline per case.
type Case struct {
	ID     ID            `yaml:"id"`
	Dir    string        `yaml:"-"`
	Config config.Config `yaml:"config"`

	// Jobs is the case's workflow in execution order. The first entry is
	// the primary run job; later entries (e.g. the short-term archiver)
	// run as successors on the dependency chain.
	Jobs []string `yaml:"jobs"`
}

// Open reads the case record from dir.
func Open(dir string) (*Case, error) {
	data, err := os.ReadFile(filepath.Join(dir, caseFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read case record: %w", err)
	}
	var c Case
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse case record: %w", err)
	}
	if c.Config == nil {
		c.Config = config.Config{}
	}
	if len(c.Jobs) == 0 {
		c.Jobs = []string{"case.run"}
	}
	c.Dir = dir
	return &c, nil
}

// Create initializes a new case directory with the given configuration and
// the default workflow.
func Create(dir string, id ID, cfg config.Config) (*Case, error) {
	if err := os.MkdirAll(filepath.Join(dir, "run"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create case directory: %w", err)
	}
	c := &Case{
		ID:     id,
		Dir:    dir,
		Config: cfg.Clone(),
		Jobs:   []string{"case.run", "case.st_archive"},
	}
	if c.Config == nil {
		c.Config = config.Config{}
	}
	c.Config[config.KeyCase] = string(id)
	if err := c.Save(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes the case record back to its directory.
func (c *Case) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal case record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.Dir, caseFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write case record: %w", err)
	}
	return nil
}

// RunDir returns the directory run output lands in.
func (c *Case) RunDir() string { return filepath.Join(c.Dir, "run") }

// PrimaryJob returns the head of the case's workflow.
func (c *Case) PrimaryJob() string { return c.Jobs[0] }

// HasJob reports whether name is part of the case's workflow.
func (c *Case) HasJob(name string) bool {
	for _, j := range c.Jobs {
		if j == name {
			return true
		}
	}
	return false
}

// SuccessorJobs returns the workflow links after job, in chain order.
func (c *Case) SuccessorJobs(job string) []string {
	for i, j := range c.Jobs {
		if j == job {
			return c.Jobs[i+1:]
		}
	}
	return nil
}
