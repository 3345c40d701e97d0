package cmd

import (
	"fmt"
	"os"

	"github.com/emiliensocchi/aztop/internal/registry"
	"github.com/emiliensocchi/aztop/pkg/azure"
	azuremodules "github.com/emiliensocchi/aztop/pkg/modules/azure"
	"github.com/emiliensocchi/aztop/pkg/outputters"
	"github.com/spf13/cobra"
)

var azureCmd = &cobra.Command{
	Use:     "azure",
	Aliases: []string{"az"},
	Short:   "azure commands",
	Long:    `Build overviews of management-plane resources.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

var azureOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Azure overview modules",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

var azureSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Tenant and subscription summary with resource counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		subscriptions, err := parseSubscriptions()
		if err != nil {
			return err
		}
		if len(subscriptions) == 0 {
			return fmt.Errorf("summary requires --subscription-ids")
		}

		rc := buildRunContext()
		cred, err := rc.Credentials.TokenCredential(azure.AudienceManagement)
		if err != nil {
			return err
		}

		module := &azuremodules.SummaryModule{}
		return module.Run(cmd.Context(), cred, subscriptions, outputters.NewCSVFileFactory(outputPath))
	},
}

func init() {
	addRunFlags(azureSummaryCmd)
	azureCmd.AddCommand(azureOverviewCmd)
	azureCmd.AddCommand(azureSummaryCmd)
	rootCmd.AddCommand(azureCmd)
}

// registerAzureModuleCommands generates one leaf command per registered
// management-plane module, plus "all" running every module in one pass.
func registerAzureModuleCommands() {
	hierarchy := registry.GetHierarchy()
	for _, names := range hierarchy["azure"] {
		for _, name := range names {
			entry, ok := registry.GetEntry(name)
			if !ok || entry.Resource == nil {
				continue
			}

			module := entry.Resource
			moduleCmd := &cobra.Command{
				Use:   module.Metadata().Name,
				Short: module.Metadata().Description,
				RunE: func(cmd *cobra.Command, args []string) error {
					return runEnumeration(cmd, azure.WithResourceModules(module))
				},
			}
			addRunFlags(moduleCmd)
			azureOverviewCmd.AddCommand(moduleCmd)
		}
	}

	allCmd := &cobra.Command{
		Use:   "all",
		Short: "Run every Azure overview module in a single pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnumeration(cmd, azure.WithResourceModules(registry.ResourceModules("azure")...))
		},
	}
	addRunFlags(allCmd)
	azureOverviewCmd.AddCommand(allCmd)
}
