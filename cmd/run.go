package cmd

import (
	"fmt"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/emiliensocchi/aztop/internal/logs"
	"github.com/emiliensocchi/aztop/internal/message"
	"github.com/emiliensocchi/aztop/pkg/azure"
	"github.com/emiliensocchi/aztop/pkg/outputters"
	"github.com/spf13/cobra"
)

var (
	tenantID         string
	armAccessToken   string
	graphAccessToken string
	subscriptionIDs  string
	workers          int
)

var uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// addRunFlags attaches the flags shared by every enumeration command.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&tenantID, "tenant-id", "t", "", "tenant to sign in to (defaults to the account's home tenant)")
	cmd.Flags().StringVar(&armAccessToken, "arm-access-token", "", "pre-acquired access token for Azure Resource Manager")
	cmd.Flags().StringVar(&graphAccessToken, "graph-access-token", "", "pre-acquired access token for Microsoft Graph")
	cmd.Flags().StringVarP(&subscriptionIDs, "subscription-ids", "s", "", "comma-separated subscription IDs to enumerate (defaults to all accessible)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 5, "number of subscriptions enumerated in parallel")
}

// parseSubscriptions validates the --subscription-ids flag. An empty flag
// means all accessible subscriptions.
func parseSubscriptions() ([]string, error) {
	if subscriptionIDs == "" {
		return nil, nil
	}

	var ids []string
	for _, id := range strings.Split(subscriptionIDs, ",") {
		id = strings.TrimSpace(id)
		if !uuidRe.MatchString(id) {
			return nil, fmt.Errorf("invalid subscription ID: %q", id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// buildRunContext assembles the credential store and transport for one run.
func buildRunContext() *azure.RunContext {
	credOpts := []azure.CredentialOption{}
	if tenantID != "" {
		credOpts = append(credOpts, azure.WithTenantID(tenantID))
	}
	if armAccessToken != "" {
		credOpts = append(credOpts, azure.WithToken(azure.AudienceManagement, armAccessToken))
	}
	if graphAccessToken != "" {
		credOpts = append(credOpts, azure.WithToken(azure.AudienceDirectory, graphAccessToken))
	}

	creds := azure.NewCredentialStore(credOpts...)
	return azure.NewRunContext(creds, azure.NewTransport(creds))
}

// runEnumeration runs the given modules to completion, cancelling on
// SIGINT/SIGTERM.
func runEnumeration(cmd *cobra.Command, opts ...azure.EnumeratorOption) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subscriptions, err := parseSubscriptions()
	if err != nil {
		return err
	}

	rc := buildRunContext()
	if logger, err := logs.FileLogger(outputPath); err == nil {
		logger.Info("run starting", "run", rc.ID)
	} else {
		message.Warning("File logging disabled: %v", err)
	}

	opts = append(opts,
		azure.WithSubscriptions(subscriptions),
		azure.WithWorkers(workers),
	)

	enumerator := azure.NewEnumerator(rc, outputters.NewCSVFileFactory(outputPath), opts...)
	if err := enumerator.Run(ctx); err != nil {
		if ctx.Err() != nil {
			message.Warning("Enumeration interrupted, partial results written to %s", outputPath)
			return err
		}
		if azure.IsAuthentication(err) {
			message.Critical("Authentication failed: %v", err)
		} else {
			message.Error("Enumeration failed: %v", err)
		}
		return err
	}
	return nil
}
