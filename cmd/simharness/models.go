package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/polarsim/harness/internal/recipe"
)

// RecipeInfo holds the display metadata extracted from a recipe.
type RecipeInfo struct {
	Name        string
	Description string
	Untested    bool
	InfraOnly   bool
	Behavior    string
	Overrides   []OverrideInfo
	Suffixes    []string
	Obligations []ObligationInfo
}

// OverrideInfo is one configuration override as the recipe declares it.
type OverrideInfo struct {
	Key   string
	Value string
}

// ObligationInfo is one comparison the recipe requires.
type ObligationInfo struct {
	SuffixA   string
	SuffixB   string
	Tolerance float64
}

// ExtractRecipeInfo flattens a recipe into its display form.
func ExtractRecipeInfo(r *recipe.Recipe) *RecipeInfo {
	info := &RecipeInfo{
		Name:        r.Name,
		Description: r.Description,
		Untested:    r.Untested,
		InfraOnly:   r.InfraOnly,
		Suffixes:    r.Suffixes,
	}
	if r.Behavior != recipe.BehaviorNormal {
		info.Behavior = r.Behavior.String()
	}
	for _, ov := range r.Overrides {
		info.Overrides = append(info.Overrides, OverrideInfo{Key: ov.Key, Value: ov.Value.String()})
	}
	for _, ob := range r.Obligations {
		info.Obligations = append(info.Obligations, ObligationInfo{
			SuffixA:   ob.SuffixA,
			SuffixB:   ob.SuffixB,
			Tolerance: ob.Tolerance,
		})
	}
	return info
}

func (info *RecipeInfo) tags() string {
	tags := ""
	if info.Untested {
		tags += color.YellowString(" [untested]")
	}
	if info.InfraOnly {
		tags += color.CyanString(" [infrastructure]")
	}
	return tags
}

// PrintShort writes the one-line listing form.
func (info *RecipeInfo) PrintShort(w io.Writer) {
	fmt.Fprintf(w, "%-6s %s%s\n", info.Name, info.Description, info.tags())
}

// PrintLong writes the detailed form with overrides and obligations.
func (info *RecipeInfo) PrintLong(w io.Writer) {
	fmt.Fprintf(w, "%s%s\n", color.New(color.Bold).Sprint(info.Name), info.tags())
	fmt.Fprintf(w, "  %s\n", info.Description)
	if info.Behavior != "" {
		fmt.Fprintf(w, "  Behavior: %s\n", info.Behavior)
	}
	if len(info.Overrides) > 0 {
		fmt.Fprintln(w, "  Overrides:")
		for _, ov := range info.Overrides {
			fmt.Fprintf(w, "    %s = %s\n", ov.Key, ov.Value)
		}
	}
	if len(info.Suffixes) > 0 {
		fmt.Fprintf(w, "  Suffixes: %v\n", info.Suffixes)
	}
	for _, ob := range info.Obligations {
		kind := "bit-for-bit"
		if ob.Tolerance > 0 {
			kind = fmt.Sprintf("tolerance %g", ob.Tolerance)
		}
		fmt.Fprintf(w, "  Compare: %s vs %s (%s)\n", ob.SuffixA, ob.SuffixB, kind)
	}
}
