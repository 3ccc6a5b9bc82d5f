// Package store implements the template store: canonical parse/serialize of
// declarative template documents, merge of import-derived fragments, and
// read-time interpolation of account attributes.
package store

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

// document mirrors the persisted template format. Field order here is the
// canonical serialization order; keeping it fixed minimizes incidental
// diffs in the tracked repository.
type document struct {
	TemplateType     string    `yaml:"template_type"`
	Identifier       string    `yaml:"identifier"`
	IncludedAccounts []string  `yaml:"included_accounts,omitempty"`
	ExcludedAccounts []string  `yaml:"excluded_accounts,omitempty"`
	Deleted          bool      `yaml:"deleted,omitempty"`
	Properties       yaml.Node `yaml:"properties,omitempty"`
}

// Parse decodes one template document. Absence of `deleted` is equivalent
// to false; the key is recognized anywhere at the document's top level.
func Parse(raw []byte) (domain.Template, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return domain.Template{}, errors.Wrap(err, errors.CodeTemplateParseError, "failed to parse template document")
	}
	if doc.TemplateType == "" {
		return domain.Template{}, errors.New(errors.CodeTemplateParseError, "template document is missing template_type")
	}
	if doc.Identifier == "" {
		return domain.Template{}, errors.New(errors.CodeTemplateParseError, "template document is missing identifier")
	}

	tt := domain.TemplateType(doc.TemplateType)
	props, err := decodeProperties(tt, doc.Properties)
	if err != nil {
		return domain.Template{}, err
	}

	return domain.Template{
		TemplateType:     tt,
		Identifier:       doc.Identifier,
		IncludedAccounts: doc.IncludedAccounts,
		ExcludedAccounts: doc.ExcludedAccounts,
		Deleted:          doc.Deleted,
		Properties:       props,
	}, nil
}

// Serialize emits the canonical document form of a template. Serialize and
// Parse round-trip: ordering of unordered collections carries no meaning.
func Serialize(t domain.Template) ([]byte, error) {
	doc := document{
		TemplateType:     string(t.TemplateType),
		Identifier:       t.Identifier,
		IncludedAccounts: t.IncludedAccounts,
		ExcludedAccounts: t.ExcludedAccounts,
		Deleted:          t.Deleted,
	}
	if t.Properties != nil {
		if err := doc.Properties.Encode(t.Properties); err != nil {
			return nil, errors.Wrap(err, errors.CodeTemplateSerializeError, "failed to encode template properties")
		}
	}
	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTemplateSerializeError, "failed to serialize template document")
	}
	return raw, nil
}

// decodeProperties decodes the properties node into the typed schema owned
// by the template type.
func decodeProperties(tt domain.TemplateType, node yaml.Node) (domain.Properties, error) {
	if node.IsZero() {
		return zeroProperties(tt)
	}
	switch tt {
	case domain.TypeAWSRole:
		var p domain.RoleProperties
		if err := node.Decode(&p); err != nil {
			return nil, errors.Wrap(err, errors.CodeTemplateParseError, "failed to decode aws:iam:role properties")
		}
		return p, nil
	case domain.TypeAWSManagedPolicy:
		var p domain.ManagedPolicyProperties
		if err := node.Decode(&p); err != nil {
			return nil, errors.Wrap(err, errors.CodeTemplateParseError, "failed to decode aws:iam:managed_policy properties")
		}
		return p, nil
	case domain.TypeGroup:
		var p domain.GroupProperties
		if err := node.Decode(&p); err != nil {
			return nil, errors.Wrap(err, errors.CodeTemplateParseError, "failed to decode directory:group properties")
		}
		return p, nil
	default:
		return nil, errors.New(errors.CodeTemplateParseError, fmt.Sprintf("unknown template type '%s'", tt))
	}
}

func zeroProperties(tt domain.TemplateType) (domain.Properties, error) {
	switch tt {
	case domain.TypeAWSRole:
		return domain.RoleProperties{}, nil
	case domain.TypeAWSManagedPolicy:
		return domain.ManagedPolicyProperties{}, nil
	case domain.TypeGroup:
		return domain.GroupProperties{}, nil
	default:
		return nil, errors.New(errors.CodeTemplateParseError, fmt.Sprintf("unknown template type '%s'", tt))
	}
}
