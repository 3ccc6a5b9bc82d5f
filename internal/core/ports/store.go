package ports

import (
	"context"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
)

// TemplateRepository is the narrow interface over the git-tracked template
// store. Single-writer discipline: only the import engine writes, and the
// caller serializes concurrent imports against the same repository.
type TemplateRepository interface {
	ReadTemplates(ctx context.Context) ([]domain.Template, error)
	WriteTemplates(ctx context.Context, batch []domain.Template) error
}
