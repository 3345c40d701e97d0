package cmd

import (
	"os"

	"github.com/emiliensocchi/aztop/internal/registry"
	"github.com/emiliensocchi/aztop/pkg/azure"
	"github.com/spf13/cobra"
)

var entraCmd = &cobra.Command{
	Use:   "entra",
	Short: "entra commands",
	Long:  `Build overviews of directory-plane objects.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

var entraOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Entra overview modules",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

func init() {
	entraCmd.AddCommand(entraOverviewCmd)
	rootCmd.AddCommand(entraCmd)
}

// registerEntraModuleCommands generates one leaf command per registered
// directory-plane module.
func registerEntraModuleCommands() {
	hierarchy := registry.GetHierarchy()
	for _, names := range hierarchy["entra"] {
		for _, name := range names {
			entry, ok := registry.GetEntry(name)
			if !ok || entry.Directory == nil {
				continue
			}

			module := entry.Directory
			moduleCmd := &cobra.Command{
				Use:   module.Metadata().Name,
				Short: module.Metadata().Description,
				RunE: func(cmd *cobra.Command, args []string) error {
					return runEnumeration(cmd, azure.WithDirectoryModules(module))
				},
			}
			addRunFlags(moduleCmd)
			entraOverviewCmd.AddCommand(moduleCmd)
		}
	}
}
