package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noqdev/iambic-sub001/internal/app"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Pull live provider state into the template repository.",
	Long: `Import lists every resource of every enabled account and folds the
result into the template repository. Provider-authoritative fields are
refreshed; user-authored fields and placeholder references are preserved.
Accounts whose provider is unavailable are skipped and reported; the rest
of the run continues.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.BuildApplicationFromViper(cmd.Context(), viper.GetViper())
		if err != nil {
			return err
		}
		return application.RunImport(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
