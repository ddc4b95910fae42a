package recipe

import (
	"fmt"
	"sort"

	"github.com/polarsim/harness/internal/config"
)

// UnknownRecipeError reports a lookup of a name the catalog does not hold.
type UnknownRecipeError struct {
	Name string
}

func (e *UnknownRecipeError) Error() string {
	return fmt.Sprintf("unknown test recipe: %s", e.Name)
}

// LoadError reports a malformed recipe at catalog construction time. No
// partial catalog is ever produced: one bad recipe aborts the whole load.
type LoadError struct {
	Recipe string
	Reason error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("recipe %s is malformed: %v", e.Recipe, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Reason }

// Catalog is an immutable table of named test recipes, read-only after
// construction.
type Catalog struct {
	recipes map[string]*Recipe
}

// NewCatalog validates and registers each recipe. Validation requires
// recognized override keys, no forward $-references, unique names, and
// obligations that only name suffixes the recipe actually produces.
func NewCatalog(recipes []*Recipe) (*Catalog, error) {
	byName := make(map[string]*Recipe, len(recipes))
	for _, r := range recipes {
		if r.Name == "" {
			return nil, &LoadError{Recipe: "(unnamed)", Reason: fmt.Errorf("recipe must have a name")}
		}
		if _, dup := byName[r.Name]; dup {
			return nil, &LoadError{Recipe: r.Name, Reason: fmt.Errorf("duplicate recipe name")}
		}
		if err := validate(r); err != nil {
			return nil, &LoadError{Recipe: r.Name, Reason: err}
		}
		byName[r.Name] = r
	}
	return &Catalog{recipes: byName}, nil
}

func validate(r *Recipe) error {
	for _, ov := range r.Overrides {
		if !config.IsRecognizedKey(ov.Key) {
			return fmt.Errorf("override key %s is not a recognized configuration key", ov.Key)
		}
	}
	if err := config.CheckReferences(r.Overrides); err != nil {
		return err
	}
	for _, ob := range r.Obligations {
		if ob.SuffixA == ob.SuffixB {
			return fmt.Errorf("obligation compares suffix %s with itself", ob.SuffixA)
		}
		for _, suffix := range []string{ob.SuffixA, ob.SuffixB} {
			if !r.ProducesSuffix(suffix) {
				return fmt.Errorf("obligation names suffix %s, which no phase produces", suffix)
			}
		}
		if ob.Tolerance < 0 {
			return fmt.Errorf("obligation tolerance must not be negative")
		}
	}
	return nil
}

// Lookup returns the recipe registered under name.
func (c *Catalog) Lookup(name string) (*Recipe, error) {
	r, ok := c.recipes[name]
	if !ok {
		return nil, &UnknownRecipeError{Name: name}
	}
	return r, nil
}

// ListPublic returns the user-facing recipes sorted by name. Recipes marked
// infrastructure-only are excluded.
func (c *Catalog) ListPublic() []*Recipe {
	out := make([]*Recipe, 0, len(c.recipes))
	for _, r := range c.recipes {
		if r.InfraOnly {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListAll returns every recipe, infrastructure-only included, sorted by name.
func (c *Catalog) ListAll() []*Recipe {
	out := make([]*Recipe, 0, len(c.recipes))
	for _, r := range c.recipes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered recipes.
func (c *Catalog) Len() int { return len(c.recipes) }
