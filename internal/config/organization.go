package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

// LoadOrganization reads the organization document: accounts, the default
// account rule, and any ordered rules.
func LoadOrganization(path string) (domain.Organization, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Organization{}, errors.Wrap(err, errors.CodeConfigReadError,
			fmt.Sprintf("failed to read organization file '%s'", path))
	}
	var org domain.Organization
	if err := yaml.Unmarshal(raw, &org); err != nil {
		return domain.Organization{}, errors.Wrap(err, errors.CodeConfigParseError,
			fmt.Sprintf("failed to parse organization file '%s'", path))
	}
	if err := validateOrganization(org); err != nil {
		return domain.Organization{}, err
	}
	return org, nil
}

func validateOrganization(org domain.Organization) error {
	if len(org.Accounts) == 0 {
		return errors.NewUserFacing(errors.CodeConfigValidation,
			"organization file defines no accounts",
			"Add at least one account under 'accounts'.")
	}
	seenNames := make(map[string]struct{}, len(org.Accounts))
	seenIDs := make(map[domain.AccountID]struct{}, len(org.Accounts))
	for _, a := range org.Accounts {
		if a.ID == "" || a.Name == "" || a.Provider == "" {
			return errors.NewUserFacing(errors.CodeConfigValidation,
				fmt.Sprintf("account '%s' is missing id, name or provider", a.Name),
				"Every account needs id, name and provider fields.")
		}
		if _, dup := seenNames[a.Name]; dup {
			return errors.NewUserFacing(errors.CodeConfigValidation,
				fmt.Sprintf("duplicate account name '%s'", a.Name),
				"Account names must be unique; rename one and list the old name under previous_names.")
		}
		if _, dup := seenIDs[a.ID]; dup {
			return errors.NewUserFacing(errors.CodeConfigValidation,
				fmt.Sprintf("duplicate account id '%s'", a.ID), "")
		}
		seenNames[a.Name] = struct{}{}
		seenIDs[a.ID] = struct{}{}
	}
	return nil
}
