// Package accounts resolves the concrete set of target accounts for a
// template from the organization's ordered account rules.
package accounts

import (
	"fmt"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

const Wildcard = "*"

// ResolveAccounts evaluates the organization's default rule, its ordered
// rules, and finally the template's own include/exclude lists. Exclusion is
// a permanent mask: once an account is excluded by any rule it cannot be
// re-added by a later rule, independent of rule order. Disabled rules are
// skipped entirely. The result is a duplicate-free set.
//
// Referencing an account name the organization does not know is a
// configuration error fatal only to this template's resolution.
func ResolveAccounts(template domain.Template, org domain.Organization) (map[domain.AccountID]struct{}, error) {
	included := make(map[domain.AccountID]struct{})
	excluded := make(map[domain.AccountID]struct{})

	rules := append([]domain.AccountRule{org.DefaultRule}, org.Rules...)
	for _, rule := range rules {
		if !rule.IsEnabled() {
			continue
		}
		if err := applyRule(rule, org, included, excluded); err != nil {
			return nil, err
		}
	}

	// Template-level scope applies last, intersected against the
	// organization-resolved set, with the same exclusion-wins semantics.
	if len(template.IncludedAccounts) > 0 {
		templateSet := make(map[domain.AccountID]struct{})
		if err := expandPatterns(template.IncludedAccounts, org, templateSet); err != nil {
			return nil, err
		}
		for id := range included {
			if _, ok := templateSet[id]; !ok {
				delete(included, id)
			}
		}
	}
	if err := expandPatterns(template.ExcludedAccounts, org, excluded); err != nil {
		return nil, err
	}

	for id := range excluded {
		delete(included, id)
	}
	return included, nil
}

func applyRule(rule domain.AccountRule, org domain.Organization, included, excluded map[domain.AccountID]struct{}) error {
	if err := expandPatterns(rule.ExcludedAccounts, org, excluded); err != nil {
		return err
	}
	add := make(map[domain.AccountID]struct{})
	if err := expandPatterns(rule.IncludedAccounts, org, add); err != nil {
		return err
	}
	for id := range add {
		if _, masked := excluded[id]; masked {
			continue
		}
		included[id] = struct{}{}
	}
	return nil
}

func expandPatterns(patterns []string, org domain.Organization, into map[domain.AccountID]struct{}) error {
	for _, pattern := range patterns {
		if pattern == Wildcard {
			for _, a := range org.Accounts {
				into[a.ID] = struct{}{}
			}
			continue
		}
		account, ok := org.AccountByName(pattern)
		if !ok {
			return errors.New(errors.CodeUnknownAccount,
				fmt.Sprintf("account '%s' is not defined in organization '%s'", pattern, org.Name))
		}
		into[account.ID] = struct{}{}
	}
	return nil
}
