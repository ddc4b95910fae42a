package recipe

import (
	"errors"
	"testing"

	"github.com/polarsim/harness/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinCatalogLoads(t *testing.T) {
	catalog, err := Builtin()
	require.NoError(t, err)
	require.NotZero(t, catalog.Len())

	ers, err := catalog.Lookup("ERS")
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "rest"}, ers.Suffixes)
	require.Len(t, ers.Obligations, 1)
	assert.True(t, ers.Obligations[0].BitForBit())
}

func TestLookupUnknownRecipe(t *testing.T) {
	catalog := MustBuiltin()
	_, err := catalog.Lookup("NOPE")
	require.Error(t, err)

	var unknown *UnknownRecipeError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "NOPE", unknown.Name)
}

func TestListPublicExcludesInfraOnly(t *testing.T) {
	catalog := MustBuiltin()
	for _, r := range catalog.ListPublic() {
		assert.False(t, r.InfraOnly, "recipe %s should not be listed", r.Name)
	}
	// The infra recipes are still reachable by name.
	r, err := catalog.Lookup("TESTRUNFAIL")
	require.NoError(t, err)
	assert.Equal(t, BehaviorForceRunFail, r.Behavior)

	assert.Greater(t, len(catalog.ListAll()), len(catalog.ListPublic()))
}

func TestCatalogRejectsDuplicateName(t *testing.T) {
	_, err := NewCatalog([]*Recipe{
		{Name: "DUP", Suffixes: []string{"base"}},
		{Name: "DUP", Suffixes: []string{"base"}},
	})
	require.Error(t, err)

	var load *LoadError
	require.True(t, errors.As(err, &load))
	assert.Equal(t, "DUP", load.Recipe)
}

func TestCatalogRejectsForwardReference(t *testing.T) {
	_, err := NewCatalog([]*Recipe{
		{
			Name: "BAD",
			Overrides: []config.Override{
				{Key: config.KeyRestN, Value: config.Ref(config.KeyStopN)},
				{Key: config.KeyStopN, Value: config.Literal("11")},
			},
			Suffixes: []string{"base"},
		},
	})
	require.Error(t, err)

	var unresolved *config.UnresolvedReferenceError
	require.True(t, errors.As(err, &unresolved))
}

func TestCatalogRejectsUnknownOverrideKey(t *testing.T) {
	_, err := NewCatalog([]*Recipe{
		{
			Name: "BAD",
			Overrides: []config.Override{
				{Key: "NOT_A_KEY", Value: config.Literal("1")},
			},
			Suffixes: []string{"base"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_A_KEY")
}

func TestCatalogRejectsObligationWithUnknownSuffix(t *testing.T) {
	_, err := NewCatalog([]*Recipe{
		{
			Name:        "BAD",
			Suffixes:    []string{"base"},
			Obligations: []Obligation{{SuffixA: "base", SuffixB: "rest"}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rest")
}

func TestCatalogIsAllOrNothing(t *testing.T) {
	// One bad recipe aborts the whole catalog; the valid one must not be
	// reachable afterwards.
	catalog, err := NewCatalog([]*Recipe{
		{Name: "GOOD", Suffixes: []string{"base"}},
		{Name: "BAD", Overrides: []config.Override{{Key: "NOT_A_KEY", Value: config.Literal("1")}}, Suffixes: []string{"base"}},
	})
	require.Error(t, err)
	assert.Nil(t, catalog)
}

func TestBuiltinObligationSuffixesAreProduced(t *testing.T) {
	for _, r := range MustBuiltin().ListAll() {
		for _, ob := range r.Obligations {
			assert.True(t, r.ProducesSuffix(ob.SuffixA), "%s: %s", r.Name, ob.SuffixA)
			assert.True(t, r.ProducesSuffix(ob.SuffixB), "%s: %s", r.Name, ob.SuffixB)
		}
	}
}

func TestNCRIsMarkedUntested(t *testing.T) {
	r, err := MustBuiltin().Lookup("NCR")
	require.NoError(t, err)
	assert.True(t, r.Untested)
}
