package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/polarsim/harness/internal/config"
	"github.com/polarsim/harness/internal/recipe"
)

var (
	recipesDir string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "simharness",
	Short: "Regression-test orchestrator for long-running simulation cases",
	Long: "simharness drives a simulation case through the phases of a named test recipe\n" +
		"(startup, restart, hybrid and branch continuations), submits the runs locally or\n" +
		"to a batch queue, and decides pass/fail by comparing the artifacts the phases produce.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).With().Timestamp().Logger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&recipesDir, "recipes-dir", "c", "", "Directory of extra recipe set YAML files (builtin recipes are always loaded)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	registerRecipesCommand(rootCmd)
	registerExpandCommand(rootCmd)
	registerValidateCommand(rootCmd)
	registerRunCommand(rootCmd)
	registerSubmitCommand(rootCmd)
	registerStatusCommand(rootCmd)
}

// loadCatalog returns the builtin recipe catalog, extended with any recipe
// set files from --recipes-dir.
func loadCatalog() (*recipe.Catalog, error) {
	if recipesDir == "" {
		return recipe.Builtin()
	}
	return recipe.LoadDir(recipesDir)
}

// loadDefaults reads a case-defaults YAML file into a flat configuration.
func loadDefaults(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read defaults file %s: %w", path, err)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse defaults file %s: %w", path, err)
	}
	cfg := config.Config{}
	for key, value := range raw {
		cfg[key] = fmt.Sprintf("%v", value)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
