package recipe

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// recipeSetSchema validates recipe definition files before anything is
// registered. Structural problems are reported against the schema; semantic
// problems (forward references, unknown keys) are reported by NewCatalog.
const recipeSetSchema = `
type: object
required: [apiVersion, kind, recipes]
properties:
  apiVersion:
    const: harness/v1
  kind:
    const: RecipeSet
  recipes:
    type: array
    minItems: 1
    items:
      type: object
      required: [name, overrides, suffixes]
      properties:
        name:
          type: string
          minLength: 1
          maxLength: 16
        description:
          type: string
        infraOnly:
          type: boolean
        untested:
          type: boolean
        behavior:
          type: string
          enum: [normal, force-build-fail, force-run-fail, force-run-pass, force-archive-fail, slow-pass]
        overrides:
          type: array
          items:
            type: object
            required: [key, value]
            properties:
              key:
                type: string
              value:
                type: [string, number, boolean]
        suffixes:
          type: array
          minItems: 1
          items:
            type: string
        obligations:
          type: array
          items:
            type: object
            required: [a, b]
            properties:
              a:
                type: string
              b:
                type: string
              tolerance:
                type: number
                minimum: 0
`

func compileRecipeSetSchema() (*jsonschema.Schema, error) {
	var schemaObj interface{}
	if err := yaml.Unmarshal([]byte(recipeSetSchema), &schemaObj); err != nil {
		return nil, fmt.Errorf("failed to parse recipe schema: %w", err)
	}
	jsonData, err := json.Marshal(schemaObj)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recipe schema: %w", err)
	}
	schema, err := jsonschema.CompileString("recipe-set.schema.json", string(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to compile recipe schema: %w", err)
	}
	return schema, nil
}
