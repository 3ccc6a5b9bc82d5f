package domain

type TemplateType string

const (
	TypeAWSRole        TemplateType = "aws:iam:role"
	TypeAWSManagedPolicy TemplateType = "aws:iam:managed_policy"
	TypeGroup          TemplateType = "directory:group"
)

func (tt TemplateType) String() string {
	return string(tt)
}

// Properties is the provider-specific attribute tree of one template, a
// tagged union keyed by template type. The core only relies on equality,
// merge and structural-delta operations over it; each variant carries its
// own typed schema.
type Properties interface {
	TemplateType() TemplateType
	// ResourceName is the provider-facing name of the resource, the field
	// interpolation placeholders are most commonly derived from.
	ResourceName() string
}

// TemplateKey is the durable identity of a template. It must remain stable
// across renames of the underlying provider resource to preserve history.
type TemplateKey struct {
	Type       TemplateType
	Identifier string
}

// Template is one declarative unit describing a provider resource's desired
// state and account scope.
type Template struct {
	TemplateType     TemplateType
	Identifier       string
	IncludedAccounts []string
	ExcludedAccounts []string
	Deleted          bool
	Properties       Properties

	// FilePath is the repository document this template was parsed from,
	// empty for templates constructed by the import engine.
	FilePath string
}

func (t Template) Key() TemplateKey {
	return TemplateKey{Type: t.TemplateType, Identifier: t.Identifier}
}

// ResourceKey identifies one live resource instance: a template projected
// onto one account.
type ResourceKey struct {
	Account    AccountID
	Type       TemplateType
	Identifier string
}

// Snapshot records the canonical content hash of each live resource as seen
// by the most recent import. The plan engine consults it to detect
// out-of-band edits between import and apply.
type Snapshot map[ResourceKey]string
