package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noqdev/iambic-sub001/internal/app"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the changes the current templates imply, without applying.",
	Long: `Plan resolves every template's account scope, compares desired state
against live state, and prints the resulting change set grouped by account.
Nothing is mutated. Resources changed outside this tool since the last
import are flagged for review instead of being silently planned over.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.BuildApplicationFromViper(cmd.Context(), viper.GetViper())
		if err != nil {
			return err
		}
		_, err = application.RunPlan(cmd.Context())
		return err
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
