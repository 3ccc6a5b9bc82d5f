package ports

import (
	"context"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
)

// ProviderAdapter is the uniform read/write capability set implemented once
// per provider kind. Calls arrive with valid, already-authenticated
// credentials; adapters map provider failures into the shared error
// taxonomy (rate-limited, transient, permission-denied, not-found,
// conflict) so the engines can treat every provider alike.
type ProviderAdapter interface {
	Kind() domain.ProviderKind
	List(ctx context.Context, account domain.Account, templateType domain.TemplateType) ([]domain.LiveResource, error)
	Create(ctx context.Context, account domain.Account, properties domain.Properties) error
	Update(ctx context.Context, account domain.Account, properties domain.Properties) error
	Delete(ctx context.Context, account domain.Account, templateType domain.TemplateType, identifier string) error
}
