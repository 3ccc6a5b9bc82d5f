package domain

// LiveResource is the provider's current representation of one resource in
// one account. Mode is the management-mode marker: anything other than
// read_and_write means the resource is foreign and must never be mutated.
type LiveResource struct {
	Account      AccountID
	Provider     ProviderKind
	TemplateType TemplateType
	Identifier   string
	Mode         ManagementMode
	Properties   Properties
}

func (r LiveResource) Key() ResourceKey {
	return ResourceKey{Account: r.Account, Type: r.TemplateType, Identifier: r.Identifier}
}

// Managed reports whether the engine is allowed to write to this resource.
func (r LiveResource) Managed() bool {
	return r.Mode == ModeReadAndWrite || r.Mode == ""
}
