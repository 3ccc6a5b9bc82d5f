// Package memory implements an in-memory provider adapter with scriptable
// failures. It backs engine tests and offline dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/core/ports"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

type Adapter struct {
	mu        sync.Mutex
	kind      domain.ProviderKind
	resources map[domain.ResourceKey]domain.LiveResource
	failures  map[string][]error
	calls     map[string]int
}

var _ ports.ProviderAdapter = (*Adapter)(nil)

func New() *Adapter {
	return &Adapter{
		kind:      domain.ProviderMemory,
		resources: make(map[domain.ResourceKey]domain.LiveResource),
		failures:  make(map[string][]error),
		calls:     make(map[string]int),
	}
}

func (a *Adapter) Kind() domain.ProviderKind {
	return a.kind
}

// Seed places a live resource into the fake provider.
func (a *Adapter) Seed(res domain.LiveResource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res.Provider = a.kind
	a.resources[res.Key()] = res
}

// FailWith scripts the next len(errs) calls of op for the given resource to
// return the supplied errors in order, then succeed.
func (a *Adapter) FailWith(op string, account domain.AccountID, identifier string, errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := opKey(op, account, identifier)
	a.failures[key] = append(a.failures[key], errs...)
}

// Calls returns how many times op was invoked for the given resource.
func (a *Adapter) Calls(op string, account domain.AccountID, identifier string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[opKey(op, account, identifier)]
}

// Resource returns the current live representation, if present.
func (a *Adapter) Resource(key domain.ResourceKey) (domain.LiveResource, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, ok := a.resources[key]
	return res, ok
}

func (a *Adapter) List(ctx context.Context, account domain.Account, templateType domain.TemplateType) ([]domain.LiveResource, error) {
	if err := a.step("list", account.ID, ""); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.LiveResource
	for key, res := range a.resources {
		if key.Account == account.ID && key.Type == templateType {
			out = append(out, res)
		}
	}
	return out, nil
}

func (a *Adapter) Create(ctx context.Context, account domain.Account, properties domain.Properties) error {
	if err := a.step("create", account.ID, properties.ResourceName()); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := domain.ResourceKey{Account: account.ID, Type: properties.TemplateType(), Identifier: properties.ResourceName()}
	if _, exists := a.resources[key]; exists {
		return errors.New(errors.CodeProviderConflict, fmt.Sprintf("resource '%s' already exists", key.Identifier))
	}
	a.resources[key] = domain.LiveResource{
		Account:      account.ID,
		Provider:     a.kind,
		TemplateType: properties.TemplateType(),
		Identifier:   properties.ResourceName(),
		Mode:         domain.ModeReadAndWrite,
		Properties:   properties,
	}
	return nil
}

func (a *Adapter) Update(ctx context.Context, account domain.Account, properties domain.Properties) error {
	if err := a.step("update", account.ID, properties.ResourceName()); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := domain.ResourceKey{Account: account.ID, Type: properties.TemplateType(), Identifier: properties.ResourceName()}
	existing, exists := a.resources[key]
	if !exists {
		return errors.New(errors.CodeProviderNotFound, fmt.Sprintf("resource '%s' not found", key.Identifier))
	}
	existing.Properties = properties
	a.resources[key] = existing
	return nil
}

func (a *Adapter) Delete(ctx context.Context, account domain.Account, templateType domain.TemplateType, identifier string) error {
	if err := a.step("delete", account.ID, identifier); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := domain.ResourceKey{Account: account.ID, Type: templateType, Identifier: identifier}
	if _, exists := a.resources[key]; !exists {
		return errors.New(errors.CodeProviderNotFound, fmt.Sprintf("resource '%s' not found", identifier))
	}
	delete(a.resources, key)
	return nil
}

func (a *Adapter) step(op string, account domain.AccountID, identifier string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := opKey(op, account, identifier)
	a.calls[key]++
	if queue := a.failures[key]; len(queue) > 0 {
		err := queue[0]
		a.failures[key] = queue[1:]
		return err
	}
	return nil
}

func opKey(op string, account domain.AccountID, identifier string) string {
	return op + ":" + string(account) + ":" + identifier
}
