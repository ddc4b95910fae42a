package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/polarsim/harness/internal/caseapi"
	"github.com/polarsim/harness/internal/compare"
	"github.com/polarsim/harness/internal/config"
	"github.com/polarsim/harness/internal/report"
	"github.com/polarsim/harness/internal/sequence"
	"github.com/polarsim/harness/internal/submit"
)

var (
	runRecipeName string
	runCaseID     string
	runDefaults   string
	runWorkDir    string
	runOutput     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a recipe locally from start to verdict",
	Long: "Expand a recipe, execute every phase in dependency order in local case\n" +
		"directories, and check the recipe's comparison obligations. Exits non-zero\n" +
		"when any phase or comparison fails.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecipeTest(cmd.Context())
	},
}

func registerRunCommand(root *cobra.Command) {
	root.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runRecipeName, "recipe", "r", "", "Recipe name")
	runCmd.Flags().StringVar(&runCaseID, "case", "", "Case identity")
	runCmd.Flags().StringVarP(&runDefaults, "defaults", "d", "", "Case defaults YAML file")
	runCmd.Flags().StringVarP(&runWorkDir, "workdir", "w", ".", "Directory case directories are created under")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Write the report to a file (json or yaml by extension)")
	runCmd.MarkFlagRequired("recipe")
	runCmd.MarkFlagRequired("case")
}

func runRecipeTest(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	r, err := catalog.Lookup(runRecipeName)
	if err != nil {
		return err
	}
	defaults, err := loadDefaults(runDefaults)
	if err != nil {
		return err
	}
	defaults[config.KeyCase] = runCaseID

	plan, err := sequence.Expand(r, caseapi.ID(runCaseID), defaults)
	if err != nil {
		return err
	}
	graph := sequence.NewPhaseGraph(plan)
	if err := graph.DetectCycles(); err != nil {
		return err
	}
	ordered, err := graph.TopologicalOrder()
	if err != nil {
		return err
	}

	exec := submit.NewLocalExecutor(os.Stdout, os.Stderr)
	exec.Behavior = r.Behavior

	cases := make(map[caseapi.ID]*caseapi.Case)
	caseFor := func(phase sequence.Phase) (*caseapi.Case, error) {
		if c, ok := cases[phase.CaseID]; ok {
			return c, nil
		}
		dir := filepath.Join(runWorkDir, string(phase.CaseID))
		c, err := caseapi.Create(dir, phase.CaseID, phase.Config)
		if err != nil {
			return nil, err
		}
		if err := exec.Build(ctx, c); err != nil {
			return nil, err
		}
		cases[phase.CaseID] = c
		return c, nil
	}

	rep := &report.RunReport{Recipe: r.Name, Case: runCaseID, Untested: plan.Untested}
	engine := compare.NewEngine(r.Name)
	fetch := func(suffix string) ([]caseapi.Artifact, error) {
		producing, ok := plan.PhaseProducing(suffix)
		if !ok {
			return nil, fmt.Errorf("no phase produces suffix %s", suffix)
		}
		c, ok := cases[producing.CaseID]
		if !ok {
			return nil, fmt.Errorf("case %s never ran", producing.CaseID)
		}
		return c.ListArtifacts(suffix)
	}

	for _, phase := range ordered {
		err := runPhase(ctx, exec, phase, cases, caseFor)
		rep.AddPhase(phase.ID(), string(phase.CaseID), phase.Mode.String(), phase.Suffix, err)
		if err != nil {
			break
		}
		for _, ob := range plan.ObligationsDueAfter(phase) {
			rep.AddObligation(ob.SuffixA, ob.SuffixB, ob.Tolerance, engine.Check(ob, fetch))
		}
	}

	rep.Render(os.Stdout)
	if runOutput != "" {
		if err := rep.WriteFile(runOutput); err != nil {
			return err
		}
	}
	if !rep.Passed() {
		return fmt.Errorf("recipe %s failed on case %s", r.Name, runCaseID)
	}
	return nil
}

func runPhase(ctx context.Context, exec *submit.LocalExecutor, phase sequence.Phase, cases map[caseapi.ID]*caseapi.Case, caseFor func(sequence.Phase) (*caseapi.Case, error)) error {
	c, err := caseFor(phase)
	if err != nil {
		return err
	}
	if phase.CloneFrom != nil {
		src, ok := cases[phase.CloneFrom.CaseID]
		if !ok {
			return fmt.Errorf("clone source %s never ran", phase.CloneFrom.CaseID)
		}
		if err := exec.Clone(ctx, src, c, *phase.CloneFrom); err != nil {
			return err
		}
	}
	if _, err := exec.RunPhase(ctx, c, phase); err != nil {
		return err
	}
	if c.Config.True(config.KeyDoutS) {
		return exec.Archive(ctx, c)
	}
	return nil
}
