package cmd

import (
	"fmt"
	"sort"

	"github.com/emiliensocchi/aztop/internal/message"
	"github.com/emiliensocchi/aztop/internal/registry"
	"github.com/spf13/cobra"
)

var listModulesCmd = &cobra.Command{
	Use:   "list-modules",
	Short: "Display available overview modules in a tree structure",
	Run: func(cmd *cobra.Command, args []string) {
		displayModuleTree()
	},
}

func init() {
	rootCmd.AddCommand(listModulesCmd)
}

func displayModuleTree() {
	hierarchy := registry.GetHierarchy()

	platforms := make([]string, 0, len(hierarchy))
	for platform := range hierarchy {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)

	for _, platform := range platforms {
		fmt.Printf("\n%s\n", message.Emphasize(platform))

		categories := make([]string, 0, len(hierarchy[platform]))
		for category := range hierarchy[platform] {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		for _, category := range categories {
			fmt.Printf("  %s\n", category)

			names := append([]string{}, hierarchy[platform][category]...)
			sort.Strings(names)
			for _, name := range names {
				entry, _ := registry.GetEntry(name)
				description := ""
				if entry.Resource != nil {
					description = entry.Resource.Metadata().Description
				} else if entry.Directory != nil {
					description = entry.Directory.Metadata().Description
				}
				fmt.Printf("    %s - %s\n", name, description)
			}
		}
	}
	fmt.Println()
}
