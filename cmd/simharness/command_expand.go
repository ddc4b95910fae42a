package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/polarsim/harness/internal/caseapi"
	"github.com/polarsim/harness/internal/config"
	"github.com/polarsim/harness/internal/report"
	"github.com/polarsim/harness/internal/sequence"
)

var (
	expandRecipe   string
	expandCase     string
	expandDefaults string
	expandOutput   string
	expandView     string
)

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Expand a recipe into its phase plan",
	Long:  "Resolve a recipe's overrides against the case defaults and print or write the ordered phase plan, including cross-case clone dependencies.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return expandRecipePlan()
	},
}

func registerExpandCommand(root *cobra.Command) {
	root.AddCommand(expandCmd)

	expandCmd.Flags().StringVarP(&expandRecipe, "recipe", "r", "", "Recipe name")
	expandCmd.Flags().StringVar(&expandCase, "case", "", "Case identity")
	expandCmd.Flags().StringVarP(&expandDefaults, "defaults", "d", "", "Case defaults YAML file")
	expandCmd.Flags().StringVarP(&expandOutput, "output", "o", "", "Write the plan to a file (json or yaml by extension)")
	expandCmd.Flags().StringVarP(&expandView, "view", "v", "dag", "View (dag/obligations)")
	expandCmd.MarkFlagRequired("recipe")
	expandCmd.MarkFlagRequired("case")
}

func expandRecipePlan() error {
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	r, err := catalog.Lookup(expandRecipe)
	if err != nil {
		return err
	}
	defaults, err := loadDefaults(expandDefaults)
	if err != nil {
		return err
	}
	defaults[config.KeyCase] = expandCase

	plan, err := sequence.Expand(r, caseapi.ID(expandCase), defaults)
	if err != nil {
		return err
	}
	graph := sequence.NewPhaseGraph(plan)
	if err := graph.DetectCycles(); err != nil {
		return err
	}

	if expandOutput != "" {
		return writePlan(plan, expandOutput)
	}

	viewer := report.NewPlanViewer(plan)
	switch expandView {
	case "obligations":
		fmt.Print(viewer.ViewObligations())
	default:
		fmt.Print(viewer.ViewDAG())
	}
	return nil
}

func writePlan(plan *sequence.Plan, path string) error {
	var data []byte
	var err error
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(plan)
	default:
		data, err = json.MarshalIndent(plan, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to render plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan to %s: %w", path, err)
	}
	fmt.Printf("✓ Plan written to %s\n", path)
	return nil
}
