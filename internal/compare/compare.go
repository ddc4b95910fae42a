// Package compare decides whether the artifacts of two phases satisfy a
// recipe's comparison obligations: bit-for-bit equivalence by default, or
// equivalence within a stated tolerance.
package compare

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
	"github.com/polarsim/harness/internal/caseapi"
	"github.com/polarsim/harness/internal/recipe"
)

// Failure reports that two artifact sets differ where the recipe required a
// match. It is a test failure, not an orchestration error: the harness worked,
// the simulation's answer changed.
type Failure struct {
	Recipe    string
	SuffixA   string
	SuffixB   string
	ArtifactA string
	ArtifactB string
	// Field is the first diverging field when the artifacts are
	// field-addressable; empty for a coarse "files differ" result.
	Field  string
	Detail string
}

func (f *Failure) Error() string {
	where := "files differ"
	if f.Field != "" {
		where = fmt.Sprintf("first divergence at field %s", f.Field)
	}
	return fmt.Sprintf("recipe %s: %s and %s are not equivalent (%s vs %s): %s; %s",
		f.Recipe, f.SuffixA, f.SuffixB, f.ArtifactA, f.ArtifactB, where, f.Detail)
}

// Fetcher retrieves the artifacts a phase produced, by suffix.
type Fetcher func(suffix string) ([]caseapi.Artifact, error)

// Engine evaluates comparison obligations.
type Engine struct {
	recipeName string
}

// NewEngine creates an engine reporting failures against the recipe name.
func NewEngine(recipeName string) *Engine {
	return &Engine{recipeName: recipeName}
}

// Check evaluates one obligation. A missing artifact is a hard error, never a
// skip. A mismatch returns a *Failure.
func (e *Engine) Check(ob recipe.Obligation, fetch Fetcher) error {
	artsA, err := fetch(ob.SuffixA)
	if err != nil {
		return err
	}
	artsB, err := fetch(ob.SuffixB)
	if err != nil {
		return err
	}
	if len(artsA) == 0 {
		return fmt.Errorf("recipe %s: no artifacts with suffix %s were produced", e.recipeName, ob.SuffixA)
	}
	if len(artsB) == 0 {
		return fmt.Errorf("recipe %s: no artifacts with suffix %s were produced", e.recipeName, ob.SuffixB)
	}
	if len(artsA) != len(artsB) {
		return &Failure{
			Recipe:  e.recipeName,
			SuffixA: ob.SuffixA,
			SuffixB: ob.SuffixB,
			Detail:  fmt.Sprintf("%d artifacts vs %d", len(artsA), len(artsB)),
		}
	}

	for i := range artsA {
		if err := e.checkPair(ob, artsA[i], artsB[i]); err != nil {
			return err
		}
	}
	return nil
}

// CheckAll evaluates every obligation and aggregates the failures, so a run
// reports all diverging pairs rather than the first.
func (e *Engine) CheckAll(obligations []recipe.Obligation, fetch Fetcher) error {
	var result *multierror.Error
	for _, ob := range obligations {
		if err := e.Check(ob, fetch); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (e *Engine) checkPair(ob recipe.Obligation, a, b caseapi.Artifact) error {
	if ob.BitForBit() {
		if a.Checksum == b.Checksum {
			return nil
		}
		failure := &Failure{
			Recipe:    e.recipeName,
			SuffixA:   ob.SuffixA,
			SuffixB:   ob.SuffixB,
			ArtifactA: a.Name,
			ArtifactB: b.Name,
			Detail:    fmt.Sprintf("checksum %.12s != %.12s", a.Checksum, b.Checksum),
		}
		// Narrow to the first diverging field when both sides parsed.
		if field, detail, found := firstDivergence(a, b, 0); found {
			failure.Field = field
			failure.Detail = detail
		}
		return failure
	}

	if field, detail, found := firstDivergence(a, b, ob.Tolerance); found {
		return &Failure{
			Recipe:    e.recipeName,
			SuffixA:   ob.SuffixA,
			SuffixB:   ob.SuffixB,
			ArtifactA: a.Name,
			ArtifactB: b.Name,
			Field:     field,
			Detail:    detail,
		}
	}
	return nil
}

// firstDivergence scans both field maps in stable order and returns the first
// field whose relative difference exceeds the tolerance, or a field present on
// only one side.
func firstDivergence(a, b caseapi.Artifact, tolerance float64) (field, detail string, found bool) {
	if len(a.Fields) == 0 && len(b.Fields) == 0 {
		return "", "", false
	}

	seen := make(map[string]bool, len(a.Fields))
	for _, name := range a.SortedFieldNames() {
		seen[name] = true
		va := a.Fields[name]
		vb, ok := b.Fields[name]
		if !ok {
			return name, "field missing on second side", true
		}
		if !withinTolerance(va, vb, tolerance) {
			return name, fmt.Sprintf("%g vs %g exceeds tolerance %g", va, vb, tolerance), true
		}
	}
	for _, name := range b.SortedFieldNames() {
		if !seen[name] {
			return name, "field missing on first side", true
		}
	}
	return "", "", false
}

func withinTolerance(a, b, tolerance float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return diff <= tolerance
	}
	return diff/scale <= tolerance
}
