package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/core/ports"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

// FileRepository is the filesystem-backed template repository, one YAML
// document per template under a root directory (typically a git clone).
// Single-writer discipline is the caller's responsibility: one import per
// clone at a time.
type FileRepository struct {
	root   string
	logger ports.Logger
}

var _ ports.TemplateRepository = (*FileRepository)(nil)

func NewFileRepository(root string, logger ports.Logger) *FileRepository {
	return &FileRepository{root: root, logger: logger}
}

func (r *FileRepository) ReadTemplates(ctx context.Context) ([]domain.Template, error) {
	var templates []domain.Template
	err := filepath.WalkDir(r.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !isTemplateFile(path) {
			return nil
		}
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return errors.Wrap(readErr, errors.CodeRepositoryError, fmt.Sprintf("failed to read template file %s", path))
		}
		tmpl, parseErr := Parse(raw)
		if parseErr != nil {
			// A malformed document is fatal to that template only.
			r.logger.Warnf(ctx, "Skipping malformed template file %s: %v", path, parseErr)
			return nil
		}
		rel, relErr := filepath.Rel(r.root, path)
		if relErr != nil {
			rel = path
		}
		tmpl.FilePath = rel
		templates = append(templates, tmpl)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRepositoryError, "failed to walk template repository")
	}
	return templates, nil
}

func (r *FileRepository) WriteTemplates(ctx context.Context, batch []domain.Template) error {
	for _, tmpl := range batch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		path := tmpl.FilePath
		if path == "" {
			path = defaultPath(tmpl)
		}
		abs := filepath.Join(r.root, path)
		raw, err := Serialize(tmpl)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return errors.Wrap(err, errors.CodeRepositoryError, fmt.Sprintf("failed to create directory for %s", path))
		}
		if err := os.WriteFile(abs, raw, 0o644); err != nil {
			return errors.Wrap(err, errors.CodeRepositoryError, fmt.Sprintf("failed to write template file %s", path))
		}
	}
	return nil
}

func isTemplateFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

func defaultPath(t domain.Template) string {
	dir := strings.ReplaceAll(string(t.TemplateType), ":", "_")
	return filepath.Join(dir, t.Identifier+".yaml")
}
