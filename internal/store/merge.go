package store

import (
	"fmt"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

// MergeImported folds an import-derived template fragment into an existing
// template. Scope fields (included/excluded accounts, deleted, file path)
// are user-authored and kept from the existing template; within properties,
// each typed schema decides which fields the provider owns.
func MergeImported(existing, imported domain.Template) (domain.Template, error) {
	if existing.Key() != imported.Key() {
		return domain.Template{}, errors.New(errors.CodeInternal,
			fmt.Sprintf("cannot merge templates with different keys: %v vs %v", existing.Key(), imported.Key()))
	}

	out := existing
	if existing.Properties == nil {
		out.Properties = imported.Properties
		return out, nil
	}
	if imported.Properties == nil {
		return out, nil
	}

	switch ep := existing.Properties.(type) {
	case domain.RoleProperties:
		ip, ok := imported.Properties.(domain.RoleProperties)
		if !ok {
			return domain.Template{}, mergeTypeError(existing)
		}
		out.Properties = ep.MergeImported(ip)
	case domain.ManagedPolicyProperties:
		ip, ok := imported.Properties.(domain.ManagedPolicyProperties)
		if !ok {
			return domain.Template{}, mergeTypeError(existing)
		}
		out.Properties = ep.MergeImported(ip)
	case domain.GroupProperties:
		ip, ok := imported.Properties.(domain.GroupProperties)
		if !ok {
			return domain.Template{}, mergeTypeError(existing)
		}
		out.Properties = ep.MergeImported(ip)
	default:
		return domain.Template{}, mergeTypeError(existing)
	}
	return out, nil
}

func mergeTypeError(t domain.Template) error {
	return errors.New(errors.CodeInternal,
		fmt.Sprintf("mismatched property schema for template '%s' (%s)", t.Identifier, t.TemplateType))
}
