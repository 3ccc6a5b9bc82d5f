// Package importer pulls live provider state and folds it into the template
// store. Import is the single writer of the store and the path by which the
// repository converges to live truth, including after a partial-failure
// apply run.
package importer

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/core/ports"
	"github.com/noqdev/iambic-sub001/internal/core/service"
	"github.com/noqdev/iambic-sub001/internal/errors"
	"github.com/noqdev/iambic-sub001/internal/store"
	"github.com/noqdev/iambic-sub001/pkg/structdiff"
)

type SkippedAccount struct {
	Account domain.AccountID
	Err     error
}

type Result struct {
	// Written counts templates whose stored form actually changed. A
	// re-import with no upstream drift writes nothing.
	Written         int
	SkippedAccounts []SkippedAccount
	Snapshot        domain.Snapshot
}

type Engine struct {
	registry    *service.ProviderRegistry
	repo        ports.TemplateRepository
	logger      ports.Logger
	concurrency int
}

func NewEngine(registry *service.ProviderRegistry, repo ports.TemplateRepository, logger ports.Logger, concurrency int) (*Engine, error) {
	if registry == nil {
		return nil, errors.New(errors.CodeConfigValidation, "provider registry cannot be nil")
	}
	if repo == nil {
		return nil, errors.New(errors.CodeConfigValidation, "template repository cannot be nil")
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Engine{registry: registry, repo: repo, logger: logger, concurrency: concurrency}, nil
}

// Run imports live state for every enabled account of the organization.
// Listing fans out per account under a bounded budget; merging and writing
// are sequential to keep the store single-writer. Provider unavailability
// for one account skips that account only and is reported in the result.
func (e *Engine) Run(ctx context.Context, org domain.Organization) (Result, error) {
	existing, err := e.repo.ReadTemplates(ctx)
	if err != nil {
		return Result{}, err
	}
	byKey := make(map[domain.TemplateKey]domain.Template, len(existing))
	for _, t := range existing {
		byKey[t.Key()] = t
	}

	listings, skipped := e.listAll(ctx, org)

	result := Result{SkippedAccounts: skipped, Snapshot: make(domain.Snapshot)}
	changed := make(map[domain.TemplateKey]domain.Template)

	for _, listing := range listings {
		account := listing.account
		for _, res := range listing.resources {
			hash, hashErr := structdiff.Hash(res.Properties)
			if hashErr != nil {
				return Result{}, errors.Wrap(hashErr, errors.CodeInternal, "failed to hash live resource")
			}
			result.Snapshot[res.Key()] = hash

			merged, mergeErr := e.fold(account, res, byKey)
			if mergeErr != nil {
				e.logger.Warnf(ctx, "Skipping live resource '%s' in account %s: %v", res.Identifier, account.ID, mergeErr)
				continue
			}
			previous, had := byKey[merged.Key()]
			byKey[merged.Key()] = merged
			if !had || templateChanged(previous, merged) {
				changed[merged.Key()] = merged
			}
		}
	}

	if len(changed) > 0 {
		batch := make([]domain.Template, 0, len(changed))
		for _, t := range changed {
			batch = append(batch, t)
		}
		sort.Slice(batch, func(i, j int) bool {
			if batch[i].TemplateType != batch[j].TemplateType {
				return batch[i].TemplateType < batch[j].TemplateType
			}
			return batch[i].Identifier < batch[j].Identifier
		})
		if err := e.repo.WriteTemplates(ctx, batch); err != nil {
			return Result{}, err
		}
		result.Written = len(batch)
	}
	return result, nil
}

// ListLive gathers live state across all enabled accounts without touching
// the store. The plan flow uses it to fetch the comparison baseline.
func (e *Engine) ListLive(ctx context.Context, org domain.Organization) ([]domain.LiveResource, []SkippedAccount) {
	listings, skipped := e.listAll(ctx, org)
	var out []domain.LiveResource
	for _, listing := range listings {
		out = append(out, listing.resources...)
	}
	return out, skipped
}

type accountListing struct {
	account   domain.Account
	resources []domain.LiveResource
}

func (e *Engine) listAll(ctx context.Context, org domain.Organization) ([]accountListing, []SkippedAccount) {
	var mu sync.Mutex
	var listings []accountListing
	var skipped []SkippedAccount

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, account := range org.Accounts {
		if account.EffectiveMode() == domain.ModeDisabled {
			continue
		}
		g.Go(func() error {
			adapter, err := e.registry.AdapterForKind(account.Provider)
			if err != nil {
				mu.Lock()
				skipped = append(skipped, SkippedAccount{Account: account.ID, Err: err})
				mu.Unlock()
				return nil
			}
			var resources []domain.LiveResource
			for _, tt := range e.registry.OwnedTypes(account.Provider) {
				listed, listErr := adapter.List(gctx, account, tt)
				if listErr != nil {
					// One unavailable account must not abort the run.
					e.logger.Warnf(gctx, "Skipping account %s: listing %s failed: %v", account.ID, tt, listErr)
					mu.Lock()
					skipped = append(skipped, SkippedAccount{Account: account.ID, Err: listErr})
					mu.Unlock()
					return nil
				}
				resources = append(resources, listed...)
			}
			mu.Lock()
			listings = append(listings, accountListing{account: account, resources: resources})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(listings, func(i, j int) bool { return listings[i].account.ID < listings[j].account.ID })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Account < skipped[j].Account })
	return listings, skipped
}

// fold builds the canonical template fragment for one live resource and
// merges it into the store's current template for that key.
func (e *Engine) fold(account domain.Account, res domain.LiveResource, byKey map[domain.TemplateKey]domain.Template) (domain.Template, error) {
	props := res.Properties

	// Literals tied to a renamed account attribute become placeholder
	// references; everything else stays literal.
	for _, prev := range account.PreviousNames {
		rewritten, _, err := store.RewriteLiterals(props, "account_name", prev)
		if err != nil {
			return domain.Template{}, err
		}
		props = rewritten
	}

	key := domain.TemplateKey{Type: res.TemplateType, Identifier: res.Identifier}
	existing, ok := byKey[key]
	if !ok {
		return domain.Template{
			TemplateType:     res.TemplateType,
			Identifier:       res.Identifier,
			IncludedAccounts: []string{account.Name},
			Properties:       props,
		}, nil
	}

	// The stored template keeps placeholder form: any variable the existing
	// template already interpolates is folded back from its literal value.
	for _, variable := range placeholdersIn(existing.Properties) {
		value := store.AccountVariables(account)[variable]
		if value == "" {
			continue
		}
		rewritten, _, err := store.RewriteLiterals(props, variable, value)
		if err != nil {
			return domain.Template{}, err
		}
		props = rewritten
	}

	return store.MergeImported(existing, domain.Template{
		TemplateType: res.TemplateType,
		Identifier:   res.Identifier,
		Properties:   props,
	})
}

var placeholderScan = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

func placeholdersIn(props domain.Properties) []string {
	if props == nil {
		return nil
	}
	raw, err := structdiff.Canonical(props)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, m := range placeholderScan.FindAllStringSubmatch(string(raw), -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

func templateChanged(before, after domain.Template) bool {
	if before.Deleted != after.Deleted {
		return true
	}
	eq, err := structdiff.Equal(before.Properties, after.Properties)
	if err != nil {
		return true
	}
	return !eq
}
