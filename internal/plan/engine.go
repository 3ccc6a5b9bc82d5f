// Package plan computes a change plan from desired templates and live
// provider state. Planning is pure in-memory computation: no provider
// calls, no side effects.
package plan

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noqdev/iambic-sub001/internal/accounts"
	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/errors"
	"github.com/noqdev/iambic-sub001/internal/store"
	"github.com/noqdev/iambic-sub001/pkg/structdiff"
)

// Issue records a template whose resolution failed. The failure is fatal to
// that template only; sibling templates still plan.
type Issue struct {
	Template domain.TemplateKey
	Err      error
}

// Result is an immutable plan plus the per-template configuration issues
// encountered while computing it.
type Result struct {
	Plan   domain.Plan
	Issues []Issue
}

// ComputePlan reconciles each template against live state for every account
// in its resolved scope. Entries are grouped by (provider, account); within
// a group Delete is ordered after Create/Update so a dependent resource
// being replaced never briefly dangles.
func ComputePlan(org domain.Organization, templates []domain.Template, live []domain.LiveResource, snapshot domain.Snapshot) (Result, error) {
	liveByKey := make(map[domain.ResourceKey]domain.LiveResource, len(live))
	for _, r := range live {
		liveByKey[r.Key()] = r
	}

	groups := make(map[groupKey][]domain.ChangeRecord)
	var issues []Issue

	for _, tmpl := range templates {
		scope, err := accounts.ResolveAccounts(tmpl, org)
		if err != nil {
			issues = append(issues, Issue{Template: tmpl.Key(), Err: err})
			continue
		}
		scopeIDs := sortedIDs(scope)
		for _, id := range scopeIDs {
			account, ok := org.AccountByID(id)
			if !ok {
				continue
			}
			if account.EffectiveMode() == domain.ModeDisabled {
				continue
			}
			record, err := reconcile(tmpl, account, liveByKey, snapshot)
			if err != nil {
				issues = append(issues, Issue{Template: tmpl.Key(), Err: err})
				continue
			}
			gk := groupKey{provider: account.Provider, account: account.ID}
			groups[gk] = append(groups[gk], record)
		}
	}

	return Result{Plan: assemble(groups), Issues: issues}, nil
}

type groupKey struct {
	provider domain.ProviderKind
	account  domain.AccountID
}

func reconcile(tmpl domain.Template, account domain.Account, liveByKey map[domain.ResourceKey]domain.LiveResource, snapshot domain.Snapshot) (domain.ChangeRecord, error) {
	record := domain.ChangeRecord{
		Account:      account.ID,
		Provider:     account.Provider,
		TemplateType: tmpl.TemplateType,
		Identifier:   tmpl.Identifier,
	}
	key := record.ResourceKey()
	liveRes, exists := liveByKey[key]

	// Deletion intent dominates: even when live content differs from what
	// deletion would imply, the action stays Delete.
	if tmpl.Deleted {
		record.Action = domain.ActionDelete
		return record, nil
	}

	desired, err := store.Interpolate(tmpl.Properties, account)
	if err != nil {
		return domain.ChangeRecord{}, err
	}

	if !exists {
		if account.EffectiveMode() == domain.ModeReadOnly {
			record.Action = domain.ActionSkippedReadOnly
			return record, nil
		}
		record.Action = domain.ActionCreate
		record.Desired = desired
		return record, nil
	}

	if !liveRes.Managed() {
		record.Action = domain.ActionSkippedUnmanaged
		return record, nil
	}

	changes, err := structdiff.Diff(liveRes.Properties, desired)
	if err != nil {
		return domain.ChangeRecord{}, errors.Wrap(err, errors.CodeInternal, "failed to compute property delta")
	}
	if len(changes) == 0 {
		record.Action = domain.ActionNoOp
		return record, nil
	}

	record.Delta = toDeltas(changes)

	if account.EffectiveMode() == domain.ModeReadOnly {
		record.Action = domain.ActionSkippedReadOnly
		return record, nil
	}

	// Out-of-band edit: live state no longer matches what the last import
	// recorded, so an update here could clobber a concurrent external
	// change. Surface for review instead of writing.
	if expected, ok := snapshot[key]; ok {
		current, hashErr := structdiff.Hash(liveRes.Properties)
		if hashErr != nil {
			return domain.ChangeRecord{}, errors.Wrap(hashErr, errors.CodeInternal, "failed to hash live properties")
		}
		if current != expected {
			record.Action = domain.ActionReviewRequired
			return record, nil
		}
	}

	record.Action = domain.ActionUpdate
	record.Desired = desired
	return record, nil
}

func toDeltas(changes []structdiff.Change) []domain.PropertyDelta {
	out := make([]domain.PropertyDelta, 0, len(changes))
	for _, c := range changes {
		out = append(out, domain.PropertyDelta{Path: c.Path, Live: c.Before, Desired: c.After})
	}
	return out
}

func assemble(groups map[groupKey][]domain.ChangeRecord) domain.Plan {
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].provider != keys[j].provider {
			return keys[i].provider < keys[j].provider
		}
		return keys[i].account < keys[j].account
	})

	plan := domain.Plan{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	for _, k := range keys {
		entries := groups[k]
		// Deletes after creates/updates within the group.
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Action != domain.ActionDelete && entries[j].Action == domain.ActionDelete
		})
		plan.Groups = append(plan.Groups, domain.PlanGroup{
			Provider: k.provider,
			Account:  k.account,
			Entries:  entries,
		})
	}
	return plan
}

func sortedIDs(set map[domain.AccountID]struct{}) []domain.AccountID {
	out := make([]domain.AccountID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
