package recipe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/polarsim/harness/internal/config"
	"gopkg.in/yaml.v3"
)

// recipeSetFile is the on-disk shape of a recipe definition file. This is the
// durable, versionable surface for adding new test types without touching the
// builtin table.
type recipeSetFile struct {
	APIVersion string       `yaml:"apiVersion" json:"apiVersion"`
	Kind       string       `yaml:"kind" json:"kind"`
	Recipes    []recipeSpec `yaml:"recipes" json:"recipes"`
}

type recipeSpec struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description" json:"description"`
	InfraOnly   bool             `yaml:"infraOnly" json:"infraOnly"`
	Untested    bool             `yaml:"untested" json:"untested"`
	Behavior    string           `yaml:"behavior" json:"behavior"`
	Overrides   []overrideSpec   `yaml:"overrides" json:"overrides"`
	Suffixes    []string         `yaml:"suffixes" json:"suffixes"`
	Obligations []obligationSpec `yaml:"obligations" json:"obligations"`
}

type overrideSpec struct {
	Key   string      `yaml:"key" json:"key"`
	Value interface{} `yaml:"value" json:"value"`
}

type obligationSpec struct {
	A         string  `yaml:"a" json:"a"`
	B         string  `yaml:"b" json:"b"`
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
}

var behaviorsByName = map[string]Behavior{
	"":                   BehaviorNormal,
	"normal":             BehaviorNormal,
	"force-build-fail":   BehaviorForceBuildFail,
	"force-run-fail":     BehaviorForceRunFail,
	"force-run-pass":     BehaviorForceRunPass,
	"force-archive-fail": BehaviorForceArchiveFail,
	"slow-pass":          BehaviorSlowPass,
}

// LoadFile parses and schema-validates one recipe definition file and returns
// the recipes it declares. The recipes are not yet registered; pass them to
// NewCatalog (or LoadDir, which does both) for semantic validation.
func LoadFile(path string) ([]*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe file: %w", err)
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse recipe YAML %s: %w", path, err)
	}

	schema, err := compileRecipeSetSchema()
	if err != nil {
		return nil, err
	}
	// Round-trip through JSON so the schema validator sees plain maps.
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert recipe file %s: %w", path, err)
	}
	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert recipe file %s: %w", path, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("recipe file %s failed schema validation: %w", path, err)
	}

	var set recipeSetFile
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse recipe file %s: %w", path, err)
	}

	recipes := make([]*Recipe, 0, len(set.Recipes))
	for _, spec := range set.Recipes {
		r, err := spec.toRecipe()
		if err != nil {
			return nil, fmt.Errorf("recipe file %s: %w", path, err)
		}
		recipes = append(recipes, r)
	}
	return recipes, nil
}

func (spec recipeSpec) toRecipe() (*Recipe, error) {
	behavior, ok := behaviorsByName[spec.Behavior]
	if !ok {
		return nil, fmt.Errorf("recipe %s declares unknown behavior %q", spec.Name, spec.Behavior)
	}

	overrides := make([]config.Override, 0, len(spec.Overrides))
	for _, ov := range spec.Overrides {
		overrides = append(overrides, config.Override{
			Key:   ov.Key,
			Value: config.ParseValue(fmt.Sprintf("%v", ov.Value)),
		})
	}

	obligations := make([]Obligation, 0, len(spec.Obligations))
	for _, ob := range spec.Obligations {
		obligations = append(obligations, Obligation{
			SuffixA:   ob.A,
			SuffixB:   ob.B,
			Tolerance: ob.Tolerance,
		})
	}

	return &Recipe{
		Name:        spec.Name,
		Description: spec.Description,
		InfraOnly:   spec.InfraOnly,
		Untested:    spec.Untested,
		Behavior:    behavior,
		Overrides:   overrides,
		Suffixes:    spec.Suffixes,
		Obligations: obligations,
	}, nil
}

// LoadDir builds a catalog from the builtin table plus every *.yaml recipe
// definition file under dir. dir may be empty, in which case only the builtin
// recipes are registered. Any malformed file or recipe aborts the whole load.
func LoadDir(dir string) (*Catalog, error) {
	recipes := builtinRecipes()

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read recipe directory %s: %w", dir, err)
		}
		var paths []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := filepath.Ext(entry.Name())
			if ext == ".yaml" || ext == ".yml" {
				paths = append(paths, filepath.Join(dir, entry.Name()))
			}
		}
		sort.Strings(paths)

		for _, path := range paths {
			loaded, err := LoadFile(path)
			if err != nil {
				return nil, err
			}
			recipes = append(recipes, loaded...)
		}
	}

	return NewCatalog(recipes)
}
