package app

import (
	"context"
	"fmt"

	"github.com/noqdev/iambic-sub001/internal/apply"
	"github.com/noqdev/iambic-sub001/internal/approval"
	"github.com/noqdev/iambic-sub001/internal/config"
	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/core/ports"
	"github.com/noqdev/iambic-sub001/internal/core/service"
	"github.com/noqdev/iambic-sub001/internal/errors"
	"github.com/noqdev/iambic-sub001/internal/importer"
	"github.com/noqdev/iambic-sub001/internal/plan"
	"github.com/noqdev/iambic-sub001/internal/webhook"
)

type Application struct {
	Config    *config.Config
	Org       domain.Organization
	Logger    ports.Logger
	Registry  *service.ProviderRegistry
	Repo      ports.TemplateRepository
	Snapshots SnapshotStore
	Importer  *importer.Engine
	Applier   *apply.Engine
	Gate      *approval.Gate
	Reporter  ports.Reporter
}

// SnapshotStore is what the application needs from snapshot persistence.
type SnapshotStore interface {
	Load() (domain.Snapshot, error)
	Save(domain.Snapshot) error
}

// RunImport pulls live state into the template store and records the
// resulting snapshot as the new out-of-band comparison baseline.
func (a *Application) RunImport(ctx context.Context) error {
	result, err := a.Importer.Run(ctx, a.Org)
	if err != nil {
		return err
	}
	for _, s := range result.SkippedAccounts {
		a.Logger.Warnf(ctx, "Account %s skipped during import: %v", s.Account, s.Err)
	}
	if err := a.Snapshots.Save(result.Snapshot); err != nil {
		return err
	}
	a.Logger.Infof(ctx, "Import complete: %d templates written, %d accounts skipped",
		result.Written, len(result.SkippedAccounts))
	return nil
}

// RunPlan computes the change plan and reports it without mutating anything.
func (a *Application) RunPlan(ctx context.Context) (domain.Plan, error) {
	result, err := a.computePlan(ctx)
	if err != nil {
		return domain.Plan{}, err
	}
	if err := a.Reporter.ReportPlan(ctx, result.Plan); err != nil {
		return domain.Plan{}, err
	}
	return result.Plan, nil
}

// RunApply plans and immediately applies, optionally narrowed to a single
// template identifier. The freshly computed plan is the only plan applied;
// there is no stale-plan window.
func (a *Application) RunApply(ctx context.Context, scope string) (domain.ApplyResult, error) {
	result, err := a.computePlan(ctx)
	if err != nil {
		return domain.ApplyResult{}, err
	}

	applied := a.Applier.Apply(ctx, result.Plan, scope)
	if err := a.Reporter.ReportApply(ctx, applied); err != nil {
		return applied, err
	}

	switch applied.Status {
	case domain.RunPartialFailure:
		if a.Config.Apply.OnPartialFailure == config.PartialFailureHold {
			a.Logger.Warnf(ctx, "Run %s ended in partial failure; holding the change request open", applied.RunID)
		} else {
			a.Logger.Warnf(ctx, "Run %s ended in partial failure; merging with a failure comment per policy", applied.RunID)
		}
		// Re-import so the store converges to what actually happened,
		// successes included.
		if err := a.RunImport(ctx); err != nil {
			a.Logger.Errorf(ctx, err, "Post-apply import failed")
		}
	case domain.RunSuccess:
		if err := a.RunImport(ctx); err != nil {
			a.Logger.Errorf(ctx, err, "Post-apply import failed")
		}
	}
	return applied, nil
}

func (a *Application) computePlan(ctx context.Context) (plan.Result, error) {
	templates, err := a.Repo.ReadTemplates(ctx)
	if err != nil {
		return plan.Result{}, err
	}
	snapshot, err := a.Snapshots.Load()
	if err != nil {
		return plan.Result{}, err
	}
	live, skipped := a.Importer.ListLive(ctx, a.Org)
	for _, s := range skipped {
		a.Logger.Warnf(ctx, "Account %s unavailable; its resources are excluded from this plan: %v", s.Account, s.Err)
	}

	result, err := plan.ComputePlan(a.Org, templates, live, snapshot)
	if err != nil {
		return plan.Result{}, err
	}
	for _, issue := range result.Issues {
		a.Logger.Warnf(ctx, "Template %s/%s excluded from plan: %v",
			issue.Template.Type, issue.Template.Identifier, issue.Err)
	}
	return result, nil
}

// VerifyApproval parses a webhook event payload and runs any approval
// command it carries through the gate.
func (a *Application) VerifyApproval(ctx context.Context, raw []byte) (approval.Decision, error) {
	evt, err := webhook.ParseEvent(raw)
	if err != nil {
		return approval.Decision{}, err
	}
	cmd, err := webhook.ParseCommand(evt)
	if err != nil {
		return approval.Decision{}, err
	}
	if cmd == nil || cmd.Kind != webhook.CommandApprove {
		return approval.Decision{}, errors.NewUserFacing(errors.CodeConfigValidation,
			"event does not carry an approval command",
			fmt.Sprintf("Expected a comment.created event whose body starts with '%s'.", "iambic approve"))
	}
	decision := a.Gate.VerifyProxyApproval(*cmd.Approval)
	if decision.Approved {
		a.Logger.Infof(ctx, "Approval verified for change request %s (approver: %s)",
			evt.PullRequestID, cmd.Approval.ClaimedLogin)
	} else {
		a.Logger.Warnf(ctx, "Approval rejected for change request %s: %s (%s)",
			evt.PullRequestID, decision.Reason, decision.Detail)
	}
	return decision, nil
}
