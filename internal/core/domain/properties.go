package domain

// RoleProperties is the typed schema for aws:iam:role templates.
//
// Description is user-authored and preserved across import merges; the
// policy contents are provider-authoritative and overwritten by import.
type RoleProperties struct {
	RoleName             string            `yaml:"role_name" json:"role_name"`
	Path                 string            `yaml:"path,omitempty" json:"path,omitempty"`
	Description          string            `yaml:"description,omitempty" json:"description,omitempty"`
	MaxSessionDuration   int32             `yaml:"max_session_duration,omitempty" json:"max_session_duration,omitempty"`
	AssumeRolePolicy     string            `yaml:"assume_role_policy,omitempty" json:"assume_role_policy,omitempty"`
	ManagedPolicyARNs    []string          `yaml:"managed_policy_arns,omitempty" json:"managed_policy_arns,omitempty"`
	InlinePolicies       map[string]string `yaml:"inline_policies,omitempty" json:"inline_policies,omitempty"`
	PermissionsBoundary  string            `yaml:"permissions_boundary,omitempty" json:"permissions_boundary,omitempty"`
	Tags                 map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

func (RoleProperties) TemplateType() TemplateType { return TypeAWSRole }

func (p RoleProperties) ResourceName() string { return p.RoleName }

// MergeImported folds a provider-derived copy into this one, keeping the
// user-authored fields and taking everything the provider owns.
func (p RoleProperties) MergeImported(imported RoleProperties) RoleProperties {
	out := imported
	out.Description = p.Description
	return out
}

// ManagedPolicyProperties is the typed schema for aws:iam:managed_policy
// templates.
type ManagedPolicyProperties struct {
	PolicyName     string            `yaml:"policy_name" json:"policy_name"`
	Path           string            `yaml:"path,omitempty" json:"path,omitempty"`
	Description    string            `yaml:"description,omitempty" json:"description,omitempty"`
	PolicyDocument string            `yaml:"policy_document" json:"policy_document"`
	Tags           map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

func (ManagedPolicyProperties) TemplateType() TemplateType { return TypeAWSManagedPolicy }

func (p ManagedPolicyProperties) ResourceName() string { return p.PolicyName }

func (p ManagedPolicyProperties) MergeImported(imported ManagedPolicyProperties) ManagedPolicyProperties {
	out := imported
	out.Description = p.Description
	return out
}

// GroupProperties is the typed schema for directory:group templates
// (directory-service groups: Google Workspace, Okta, Azure AD).
type GroupProperties struct {
	Name        string   `yaml:"name" json:"name"`
	Email       string   `yaml:"email,omitempty" json:"email,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Members     []string `yaml:"members,omitempty" json:"members,omitempty"`
}

func (GroupProperties) TemplateType() TemplateType { return TypeGroup }

func (p GroupProperties) ResourceName() string { return p.Name }

func (p GroupProperties) MergeImported(imported GroupProperties) GroupProperties {
	out := imported
	out.Description = p.Description
	return out
}
