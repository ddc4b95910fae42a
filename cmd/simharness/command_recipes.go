package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	recipesLong bool
	recipesAll  bool
)

var recipesCmd = &cobra.Command{
	Use:     "recipes [recipe]",
	Aliases: []string{"recipe"},
	Short:   "List and inspect test recipes",
	Long:    "List available test recipes. Use 'simharness recipes <name>' for the full declaration of one recipe.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRecipes(args)
	},
}

func registerRecipesCommand(root *cobra.Command) {
	root.AddCommand(recipesCmd)

	recipesCmd.Flags().BoolVarP(&recipesLong, "long", "l", false, "Show overrides and comparison obligations")
	recipesCmd.Flags().BoolVarP(&recipesAll, "all", "a", false, "Include infrastructure-only recipes")
}

func listRecipes(args []string) error {
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		r, err := catalog.Lookup(args[0])
		if err != nil {
			return err
		}
		ExtractRecipeInfo(r).PrintLong(os.Stdout)
		return nil
	}

	recipes := catalog.ListPublic()
	if recipesAll {
		recipes = catalog.ListAll()
	}
	for _, r := range recipes {
		info := ExtractRecipeInfo(r)
		if recipesLong {
			info.PrintLong(os.Stdout)
			fmt.Println()
		} else {
			info.PrintShort(os.Stdout)
		}
	}
	return nil
}
