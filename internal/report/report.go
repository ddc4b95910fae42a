// Package report renders the outcome of a recipe run for humans and for
// machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var (
	passColor = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
)

// PhaseResult records the execution outcome of one phase.
type PhaseResult struct {
	Phase  string `json:"phase" yaml:"phase"`
	Case   string `json:"case" yaml:"case"`
	Mode   string `json:"mode" yaml:"mode"`
	Suffix string `json:"suffix" yaml:"suffix"`
	Passed bool   `json:"passed" yaml:"passed"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ObligationResult records one comparison outcome.
type ObligationResult struct {
	SuffixA   string  `json:"suffix_a" yaml:"suffix_a"`
	SuffixB   string  `json:"suffix_b" yaml:"suffix_b"`
	Tolerance float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	Passed    bool    `json:"passed" yaml:"passed"`
	Detail    string  `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// RunReport is the full outcome of driving one recipe against one case.
type RunReport struct {
	Recipe      string             `json:"recipe" yaml:"recipe"`
	Case        string             `json:"case" yaml:"case"`
	Untested    bool               `json:"untested,omitempty" yaml:"untested,omitempty"`
	Phases      []PhaseResult      `json:"phases" yaml:"phases"`
	Obligations []ObligationResult `json:"obligations,omitempty" yaml:"obligations,omitempty"`
}

// Passed reports whether every phase ran and every obligation held.
func (r *RunReport) Passed() bool {
	for _, p := range r.Phases {
		if !p.Passed {
			return false
		}
	}
	for _, ob := range r.Obligations {
		if !ob.Passed {
			return false
		}
	}
	return true
}

// AddPhase records a phase outcome. A nil err marks the phase passed.
func (r *RunReport) AddPhase(phase, caseID, mode, suffix string, err error) {
	res := PhaseResult{Phase: phase, Case: caseID, Mode: mode, Suffix: suffix, Passed: err == nil}
	if err != nil {
		res.Error = err.Error()
	}
	r.Phases = append(r.Phases, res)
}

// AddObligation records a comparison outcome. A nil err marks it held.
func (r *RunReport) AddObligation(suffixA, suffixB string, tolerance float64, err error) {
	res := ObligationResult{SuffixA: suffixA, SuffixB: suffixB, Tolerance: tolerance, Passed: err == nil}
	if err != nil {
		res.Detail = err.Error()
	}
	r.Obligations = append(r.Obligations, res)
}

func verdict(passed bool) string {
	if passed {
		return passColor.Sprint("PASS")
	}
	return failColor.Sprint("FAIL")
}

// Render writes the human-readable report.
func (r *RunReport) Render(w io.Writer) {
	fmt.Fprintf(w, "%s  %s (case %s)\n", verdict(r.Passed()), r.Recipe, r.Case)
	if r.Untested {
		fmt.Fprintf(w, "  %s this recipe is marked untested; treat the result as informational\n", warnColor.Sprint("note:"))
	}

	for _, p := range r.Phases {
		fmt.Fprintf(w, "  %s  phase %s [%s] suffix=%s\n", verdict(p.Passed), p.Phase, p.Mode, p.Suffix)
		if p.Error != "" {
			fmt.Fprintf(w, "        %s\n", p.Error)
		}
	}
	for _, ob := range r.Obligations {
		kind := "bit-for-bit"
		if ob.Tolerance > 0 {
			kind = fmt.Sprintf("tolerance %g", ob.Tolerance)
		}
		fmt.Fprintf(w, "  %s  compare %s vs %s (%s)\n", verdict(ob.Passed), ob.SuffixA, ob.SuffixB, kind)
		if ob.Detail != "" {
			fmt.Fprintf(w, "        %s\n", ob.Detail)
		}
	}
}

// WriteFile writes the report to path as JSON or YAML based on the extension,
// defaulting to JSON.
func (r *RunReport) WriteFile(path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	var data []byte
	var err error
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(r)
	default:
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}
