package domain

type AccountID string

func (id AccountID) String() string {
	return string(id)
}

type ProviderKind string

const (
	ProviderAWS    ProviderKind = "aws"
	ProviderGoogle ProviderKind = "google_workspace"
	ProviderOkta   ProviderKind = "okta"
	ProviderAzure  ProviderKind = "azure_ad"
	ProviderMemory ProviderKind = "memory"
)

func (pk ProviderKind) String() string {
	return string(pk)
}

// ManagementMode controls whether the engine may write to an account or
// resource. Anything other than ReadAndWrite is never mutated.
type ManagementMode string

const (
	ModeReadAndWrite ManagementMode = "read_and_write"
	ModeReadOnly     ManagementMode = "read_only"
	ModeDisabled     ManagementMode = "disabled"
)

// Account is one live provider tenancy (an AWS account, an Okta org, ...).
// Variables holds interpolation values templates scoped to this account may
// reference, e.g. account_name, account_id.
type Account struct {
	ID       AccountID      `yaml:"id"`
	Name     string         `yaml:"name"`
	Provider ProviderKind   `yaml:"provider"`
	Mode     ManagementMode `yaml:"mode"`
	// PreviousNames lists names this account was known by before a rename.
	// Import rewrites literals derived from them into placeholder form.
	PreviousNames []string          `yaml:"previous_names,omitempty"`
	Variables     map[string]string `yaml:"variables,omitempty"`
}

// EffectiveMode falls back to read_and_write when the mode is unset.
func (a Account) EffectiveMode() ManagementMode {
	if a.Mode == "" {
		return ModeReadAndWrite
	}
	return a.Mode
}

// AccountRule is one inclusion/exclusion pattern entry. Patterns are exact
// account names or the `*` wildcard. Exclusion always wins over inclusion,
// independent of rule order.
type AccountRule struct {
	IncludedAccounts []string `yaml:"included_accounts,omitempty"`
	ExcludedAccounts []string `yaml:"excluded_accounts,omitempty"`
	Enabled          *bool    `yaml:"enabled,omitempty"`
	Order            int      `yaml:"order,omitempty"`
}

// IsEnabled treats an absent flag as enabled.
func (r AccountRule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

type Organization struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Accounts    []Account     `yaml:"accounts"`
	DefaultRule AccountRule   `yaml:"default_rule"`
	Rules       []AccountRule `yaml:"rules,omitempty"`
}

// AccountByName returns the account with the given name, if present.
func (o Organization) AccountByName(name string) (Account, bool) {
	for _, a := range o.Accounts {
		if a.Name == name {
			return a, true
		}
	}
	return Account{}, false
}

// AccountByID returns the account with the given id, if present.
func (o Organization) AccountByID(id AccountID) (Account, bool) {
	for _, a := range o.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}
