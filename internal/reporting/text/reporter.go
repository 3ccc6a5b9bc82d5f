package text

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/core/ports"
)

const ReporterTypeText = "text"

type Config struct {
	NoColor bool `yaml:"no_color" mapstructure:"no_color"`
}

type Reporter struct {
	config Config
	writer io.Writer
	logger ports.Logger
}

func NewReporter(cfg Config, logger ports.Logger) (*Reporter, error) {
	if cfg.NoColor || !isTerminal(os.Stdout) {
		color.NoColor = true
	}
	return &Reporter{
		config: cfg,
		writer: os.Stdout,
		logger: logger,
	}, nil
}

func isTerminal(f *os.File) bool {
	stat, _ := f.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

var (
	red     = color.New(color.FgRed).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	cyan    = color.New(color.FgCyan).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
)

func actionLabel(a domain.Action) string {
	switch a {
	case domain.ActionCreate:
		return green("[CREATE]")
	case domain.ActionUpdate:
		return yellow("[UPDATE]")
	case domain.ActionDelete:
		return red("[DELETE]")
	case domain.ActionNoOp:
		return "[NO-OP]"
	case domain.ActionSkippedUnmanaged:
		return cyan("[SKIP unmanaged]")
	case domain.ActionSkippedReadOnly:
		return cyan("[SKIP read-only]")
	case domain.ActionReviewRequired:
		return magenta("[REVIEW]")
	}
	return "[UNKNOWN]"
}

func (r *Reporter) ReportPlan(ctx context.Context, plan domain.Plan) error {
	if plan.Empty() {
		fmt.Fprintln(r.writer, "Plan: no changes. Desired state matches live state.")
		return r.printNonMutating(plan)
	}

	tw := tabwriter.NewWriter(r.writer, 0, 8, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "Plan %s\n", plan.ID)
	for _, group := range plan.Groups {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintf(tw, "\nAccount %s (%s)\n", group.Account, group.Provider)
		for _, entry := range group.Entries {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", actionLabel(entry.Action), entry.TemplateType, entry.Identifier)
			for _, delta := range entry.Delta {
				fmt.Fprintf(tw, "    ~ %s:\t%s -> %s\n", delta.Path, formatValue(delta.Live), formatValue(delta.Desired))
			}
		}
	}

	summary := plan.Summary()
	fmt.Fprintf(tw, "\nSummary: %s create, %s update, %s delete, %d unchanged, %d skipped, %s review required\n",
		green(summary[domain.ActionCreate]),
		yellow(summary[domain.ActionUpdate]),
		red(summary[domain.ActionDelete]),
		summary[domain.ActionNoOp],
		summary[domain.ActionSkippedUnmanaged]+summary[domain.ActionSkippedReadOnly],
		magenta(summary[domain.ActionReviewRequired]))
	return nil
}

// printNonMutating still surfaces review-required entries on an otherwise
// empty plan; those block an apply and the operator needs to see them.
func (r *Reporter) printNonMutating(plan domain.Plan) error {
	for _, group := range plan.Groups {
		for _, entry := range group.Entries {
			if entry.Action != domain.ActionReviewRequired {
				continue
			}
			fmt.Fprintf(r.writer, "  %s %s/%s on account %s: live state changed outside this run\n",
				actionLabel(entry.Action), entry.TemplateType, entry.Identifier, entry.Account)
		}
	}
	return nil
}

func (r *Reporter) ReportApply(ctx context.Context, result domain.ApplyResult) error {
	tw := tabwriter.NewWriter(r.writer, 0, 8, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "Apply run %s (plan %s)\n", result.RunID, result.PlanID)
	for _, entry := range result.Entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		status := green("ok")
		switch entry.Status {
		case domain.EntryFailure:
			status = red("failed")
		case domain.EntrySkipped:
			status = cyan("skipped")
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s", status, entry.Record.Account, entry.Record.Action, entry.Record.Identifier)
		if entry.Reason != "" {
			fmt.Fprintf(tw, "\t%s", entry.Reason)
		} else if entry.Err != nil {
			fmt.Fprintf(tw, "\t%v", entry.Err)
		}
		fmt.Fprintln(tw)
	}

	switch result.Status {
	case domain.RunSuccess:
		fmt.Fprintf(tw, "\nResult: %s (%d applied in %s)\n", green("success"),
			len(result.Succeeded()), result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	case domain.RunPartialFailure:
		fmt.Fprintf(tw, "\nResult: %s (%d applied, %d failed)\n", yellow("partial failure"),
			len(result.Succeeded()), len(result.Failed()))
	case domain.RunFatal:
		fmt.Fprintf(tw, "\nResult: %s (%s). No changes were applied.\n", red("fatal"), result.FatalReason)
	}
	if result.Cancelled {
		fmt.Fprintf(tw, "Run was cancelled; failed entries can be retried with a new plan.\n")
	}
	return nil
}

func formatValue(value any) string {
	const maxLen = 100
	if value == nil {
		return "<absent>"
	}
	str := fmt.Sprintf("%v", value)
	if len(str) > maxLen {
		return str[:maxLen-3] + "..."
	}
	return str
}
