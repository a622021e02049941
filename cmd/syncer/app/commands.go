// Package app provides the syncer command tree.
package app

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "syncer",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Phone number catalog sync service",
		Long: `syncer mirrors the provider's phone number type availability and regulatory
requirements into a local database and serves them over HTTP.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("config", "", "Path to configuration file (YAML)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newJobsCmd())

	return root
}
