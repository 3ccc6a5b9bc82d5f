package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noqdev/iambic-sub001/internal/app"
	"github.com/noqdev/iambic-sub001/internal/config"
	"github.com/noqdev/iambic-sub001/internal/core/domain"
	apperrors "github.com/noqdev/iambic-sub001/internal/errors"
)

var applyTemplate string

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Plan and apply changes to live provider state.",
	Long: `Apply computes a fresh plan and executes it: accounts in parallel,
entries within an account in order, deletes last. Rate-limited and transient
provider failures are retried with backoff; terminal failures mark the entry
failed and the run continues. A failed entry never aborts sibling entries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.BuildApplicationFromViper(cmd.Context(), viper.GetViper())
		if err != nil {
			return err
		}
		result, err := application.RunApply(cmd.Context(), applyTemplate)
		if err != nil {
			return err
		}
		switch result.Status {
		case domain.RunFatal:
			return apperrors.NewUserFacing(apperrors.CodeMalformedPlan,
				fmt.Sprintf("apply run %s aborted: %s", result.RunID, result.FatalReason), "")
		case domain.RunPartialFailure:
			if application.Config.Apply.OnPartialFailure == config.PartialFailureHold {
				return apperrors.NewUserFacing(apperrors.CodeProviderTransient,
					fmt.Sprintf("apply run %s completed with %d failed entries", result.RunID, len(result.Failed())),
					"Fix the failures and re-run; succeeded entries are already live and will plan as no-ops.")
			}
		}
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVar(&applyTemplate, "template", "", "Apply only entries for this template identifier")
	rootCmd.AddCommand(applyCmd)
}
