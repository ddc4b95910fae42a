package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the recipe catalog",
	Long:  "Load the builtin recipes plus any recipe set files from --recipes-dir and reject the whole catalog on the first malformed recipe.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateCatalog()
	},
}

func registerValidateCommand(root *cobra.Command) {
	root.AddCommand(validateCmd)
}

func validateCatalog() error {
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	fmt.Printf("✓ %d recipes loaded\n", catalog.Len())
	return nil
}
