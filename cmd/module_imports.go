package cmd

import (
	// Modules self-register on import.
	_ "github.com/emiliensocchi/aztop/pkg/modules/azure"
	_ "github.com/emiliensocchi/aztop/pkg/modules/entra"
)

func init() {
	registerAzureModuleCommands()
	registerEntraModuleCommands()
}
