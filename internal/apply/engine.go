// Package apply executes a change plan against live provider accounts with
// bounded concurrency, per-provider rate limiting, retries, and
// partial-failure accounting.
package apply

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/core/ports"
	"github.com/noqdev/iambic-sub001/internal/core/service"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

type Config struct {
	// Concurrency bounds how many (provider, account) groups run at once.
	Concurrency int
	// MaxAttempts is the per-entry attempt budget for retryable failures.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	ProviderRPS map[domain.ProviderKind]int
}

func DefaultConfig() Config {
	return Config{
		Concurrency: 10,
		MaxAttempts: 5,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
	}
}

type Engine struct {
	registry *service.ProviderRegistry
	org      domain.Organization
	logger   ports.Logger
	cfg      Config
}

func NewEngine(registry *service.ProviderRegistry, org domain.Organization, logger ports.Logger, cfg Config) (*Engine, error) {
	if registry == nil {
		return nil, errors.New(errors.CodeConfigValidation, "provider registry cannot be nil")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultConfig().BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig().MaxBackoff
	}
	return &Engine{registry: registry, org: org, logger: logger, cfg: cfg}, nil
}

// Apply executes the plan. Groups run concurrently under the worker budget;
// entries within a group run sequentially in plan order. An optional scope
// restricts execution to entries with the named template identifier.
//
// Entry failures never abort sibling entries or groups; a Fatal result is
// reserved for conditions detected before any entry is dispatched.
func (e *Engine) Apply(ctx context.Context, p domain.Plan, scope string) domain.ApplyResult {
	result := domain.ApplyResult{
		RunID:     uuid.NewString(),
		PlanID:    p.ID,
		StartedAt: time.Now().UTC(),
	}

	groups := filterScope(p.Groups, scope)
	if fatal := e.precheck(groups); fatal != nil {
		result.Status = domain.RunFatal
		result.FatalReason = fatal.Error()
		result.FinishedAt = time.Now().UTC()
		return result
	}

	limiters := newProviderLimiters(e.cfg.ProviderRPS)

	var mu sync.Mutex
	var entries []domain.EntryResult
	cancelled := false

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(e.cfg.Concurrency)
	for _, group := range groups {
		g.Go(func() error {
			groupEntries, groupCancelled := e.applyGroup(ctx, group, limiters)
			mu.Lock()
			entries = append(entries, groupEntries...)
			cancelled = cancelled || groupCancelled
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result.Entries = entries
	result.Cancelled = cancelled
	result.FinishedAt = time.Now().UTC()
	result.Status = domain.RunSuccess
	if len(result.Failed()) > 0 {
		result.Status = domain.RunPartialFailure
	}
	return result
}

// precheck validates the plan before any dispatch: every group needs a
// known account and a registered adapter.
func (e *Engine) precheck(groups []domain.PlanGroup) error {
	for _, group := range groups {
		if _, ok := e.org.AccountByID(group.Account); !ok {
			return errors.New(errors.CodeMalformedPlan,
				fmt.Sprintf("plan references unknown account '%s'", group.Account))
		}
		if _, err := e.registry.AdapterForKind(group.Provider); err != nil {
			return err
		}
		for _, entry := range group.Entries {
			if entry.Action.Mutating() && entry.Action != domain.ActionDelete && entry.Desired == nil {
				return errors.New(errors.CodeMalformedPlan,
					fmt.Sprintf("entry '%s' has no desired properties", entry.Identifier))
			}
		}
	}
	return nil
}

func (e *Engine) applyGroup(ctx context.Context, group domain.PlanGroup, limiters *providerLimiters) ([]domain.EntryResult, bool) {
	account, _ := e.org.AccountByID(group.Account)
	adapter, _ := e.registry.AdapterForKind(group.Provider)
	log := e.logger.WithFields(map[string]any{
		"provider": group.Provider,
		"account":  group.Account,
	})

	results := make([]domain.EntryResult, 0, len(group.Entries))
	cancelled := false

	for _, entry := range group.Entries {
		if !entry.Action.Mutating() {
			results = append(results, domain.EntryResult{
				Record: entry,
				Status: domain.EntrySkipped,
				Reason: skipReason(entry.Action),
			})
			continue
		}

		// Graceful drain: once cancellation is observed, no further entries
		// are dispatched; the remainder surfaces in the failed list so the
		// run can be retried.
		if cancelled || ctx.Err() != nil {
			cancelled = true
			results = append(results, domain.EntryResult{
				Record: entry,
				Status: domain.EntryFailure,
				Reason: "cancelled before dispatch",
				Err:    ctx.Err(),
			})
			continue
		}

		res := e.applyEntry(ctx, adapter, account, entry, limiters, log)
		if ctx.Err() != nil {
			cancelled = true
		}
		results = append(results, res)
	}
	return results, cancelled
}

func (e *Engine) applyEntry(ctx context.Context, adapter ports.ProviderAdapter, account domain.Account, entry domain.ChangeRecord, limiters *providerLimiters, log ports.Logger) domain.EntryResult {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := limiters.wait(ctx, entry.Provider); err != nil {
			// Cancelled while waiting for a token; nothing was dispatched.
			return domain.EntryResult{Record: entry, Status: domain.EntryFailure, Reason: "cancelled before dispatch", Err: err}
		}

		// A dispatched provider call is allowed to finish even when the run
		// is asked to stop, so no provider-side write is interrupted.
		lastErr = e.dispatch(context.WithoutCancel(ctx), adapter, account, entry)
		if lastErr == nil {
			log.Debugf(ctx, "Applied %s %s '%s'", entry.Action, entry.TemplateType, entry.Identifier)
			return domain.EntryResult{Record: entry, Status: domain.EntrySuccess}
		}

		code := errors.GetCode(lastErr)
		if entry.Action == domain.ActionDelete && code == errors.CodeProviderNotFound {
			// Deleting something already absent achieves the desired state.
			return domain.EntryResult{Record: entry, Status: domain.EntrySuccess}
		}
		if !code.Retryable() {
			log.Warnf(ctx, "Entry '%s' failed terminally: %v", entry.Identifier, lastErr)
			return domain.EntryResult{Record: entry, Status: domain.EntryFailure, Reason: string(code), Err: lastErr}
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}
		if !e.backoff(ctx, attempt) {
			break
		}
		log.Debugf(ctx, "Retrying entry '%s' (attempt %d/%d) after %s", entry.Identifier, attempt+1, e.cfg.MaxAttempts, errors.GetCode(lastErr))
	}
	return domain.EntryResult{
		Record: entry,
		Status: domain.EntryFailure,
		Reason: string(errors.GetCode(lastErr)),
		Err:    lastErr,
	}
}

func (e *Engine) dispatch(ctx context.Context, adapter ports.ProviderAdapter, account domain.Account, entry domain.ChangeRecord) error {
	switch entry.Action {
	case domain.ActionCreate:
		return adapter.Create(ctx, account, entry.Desired)
	case domain.ActionUpdate:
		return adapter.Update(ctx, account, entry.Desired)
	case domain.ActionDelete:
		return adapter.Delete(ctx, account, entry.TemplateType, entry.Identifier)
	default:
		return errors.New(errors.CodeInternal, fmt.Sprintf("non-mutating action '%s' reached dispatch", entry.Action))
	}
}

// backoff sleeps for an exponentially growing, jittered delay. Returns
// false if cancelled during the sleep.
func (e *Engine) backoff(ctx context.Context, attempt int) bool {
	delay := e.cfg.BaseBackoff << (attempt - 1)
	if delay > e.cfg.MaxBackoff {
		delay = e.cfg.MaxBackoff
	}
	delay += time.Duration(rand.Int64N(int64(delay)/2 + 1))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func filterScope(groups []domain.PlanGroup, scope string) []domain.PlanGroup {
	if scope == "" {
		return groups
	}
	var out []domain.PlanGroup
	for _, g := range groups {
		var entries []domain.ChangeRecord
		for _, e := range g.Entries {
			if e.Identifier == scope {
				entries = append(entries, e)
			}
		}
		if len(entries) > 0 {
			out = append(out, domain.PlanGroup{Provider: g.Provider, Account: g.Account, Entries: entries})
		}
	}
	return out
}

func skipReason(action domain.Action) string {
	switch action {
	case domain.ActionNoOp:
		return "no changes"
	case domain.ActionSkippedUnmanaged:
		return "resource is not managed"
	case domain.ActionSkippedReadOnly:
		return "account is read-only"
	case domain.ActionReviewRequired:
		return "live state changed out of band, review required"
	default:
		return string(action)
	}
}
