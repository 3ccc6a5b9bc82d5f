package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noqdev/iambic-sub001/internal/app"
	apperrors "github.com/noqdev/iambic-sub001/internal/errors"
)

var eventFile string

var verifyApprovalCmd = &cobra.Command{
	Use:   "verify-approval",
	Short: "Verify a signed approval comment from a webhook event.",
	Long: `verify-approval reads a change-request webhook event (from a file or
stdin), extracts the 'iambic approve' command and its attached signature,
and checks it against the registered approver allow-list. Exit status is
zero only for a valid, fresh signature from a known approver.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readEvent()
		if err != nil {
			return err
		}
		application, err := app.BuildApplicationFromViper(cmd.Context(), viper.GetViper())
		if err != nil {
			return err
		}
		decision, err := application.VerifyApproval(cmd.Context(), raw)
		if err != nil {
			return err
		}
		if !decision.Approved {
			return apperrors.NewUserFacing(decision.Reason,
				fmt.Sprintf("approval rejected: %s", decision.Detail),
				"The change request keeps waiting for a human review.")
		}
		fmt.Fprintln(os.Stdout, "approval verified")
		return nil
	},
}

func readEvent() ([]byte, error) {
	if eventFile == "" || eventFile == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeConfigReadError, "failed to read event from stdin")
		}
		return raw, nil
	}
	raw, err := os.ReadFile(eventFile)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigReadError,
			fmt.Sprintf("failed to read event file '%s'", eventFile))
	}
	return raw, nil
}

func init() {
	verifyApprovalCmd.Flags().StringVar(&eventFile, "event", "-", "Path to the webhook event JSON ('-' for stdin)")
	rootCmd.AddCommand(verifyApprovalCmd)
}
