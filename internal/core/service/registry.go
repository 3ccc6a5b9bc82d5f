package service

import (
	"fmt"
	"sync"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/core/ports"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

// ProviderRegistry maps provider kinds and template types onto registered
// adapters. Template types are bound to a provider kind at startup so the
// engines can go from a template straight to the adapter that owns it.
type ProviderRegistry struct {
	mu        sync.RWMutex
	adapters  map[domain.ProviderKind]ports.ProviderAdapter
	typeOwner map[domain.TemplateType]domain.ProviderKind
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		adapters:  make(map[domain.ProviderKind]ports.ProviderAdapter),
		typeOwner: make(map[domain.TemplateType]domain.ProviderKind),
	}
}

func (r *ProviderRegistry) RegisterAdapter(adapter ports.ProviderAdapter, ownedTypes ...domain.TemplateType) error {
	if adapter == nil {
		return errors.New(errors.CodeInternal, "attempted to register nil provider adapter")
	}
	kind := adapter.Kind()
	if kind == "" {
		return errors.New(errors.CodeInternal, "provider adapter kind cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[kind]; exists {
		return errors.New(errors.CodeInternal, fmt.Sprintf("provider adapter '%s' already registered", kind))
	}
	for _, tt := range ownedTypes {
		if owner, exists := r.typeOwner[tt]; exists {
			return errors.New(errors.CodeInternal, fmt.Sprintf("template type '%s' already owned by provider '%s'", tt, owner))
		}
	}
	r.adapters[kind] = adapter
	for _, tt := range ownedTypes {
		r.typeOwner[tt] = kind
	}
	return nil
}

func (r *ProviderRegistry) AdapterForKind(kind domain.ProviderKind) (ports.ProviderAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[kind]
	if !exists {
		return nil, errors.New(errors.CodeProviderNotRegistered, fmt.Sprintf("no adapter registered for provider '%s'", kind))
	}
	return adapter, nil
}

func (r *ProviderRegistry) AdapterForType(tt domain.TemplateType) (ports.ProviderAdapter, error) {
	r.mu.RLock()
	kind, exists := r.typeOwner[tt]
	r.mu.RUnlock()
	if !exists {
		return nil, errors.New(errors.CodeProviderNotRegistered, fmt.Sprintf("no provider owns template type '%s'", tt))
	}
	return r.AdapterForKind(kind)
}

// OwnedTypes returns the template types bound to one provider kind.
func (r *ProviderRegistry) OwnedTypes(kind domain.ProviderKind) []domain.TemplateType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.TemplateType
	for tt, owner := range r.typeOwner {
		if owner == kind {
			out = append(out, tt)
		}
	}
	return out
}

// Kinds returns every registered provider kind.
func (r *ProviderRegistry) Kinds() []domain.ProviderKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ProviderKind, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	return out
}
