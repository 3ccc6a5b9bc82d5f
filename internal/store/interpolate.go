package store

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// AccountVariables builds the interpolation scope for one account: the
// built-in account_name/account_id attributes plus any per-account values.
func AccountVariables(account domain.Account) map[string]string {
	vars := map[string]string{
		"account_name": account.Name,
		"account_id":   string(account.ID),
	}
	for k, v := range account.Variables {
		vars[k] = v
	}
	return vars
}

// Interpolate resolves `{variable}` placeholders in every string of the
// property tree against the account's attributes. Resolution happens at
// read time only; the stored template always keeps the placeholder form.
// An unresolvable placeholder is left untouched so diffs surface it.
func Interpolate(props domain.Properties, account domain.Account) (domain.Properties, error) {
	vars := AccountVariables(account)
	return rewriteStrings(props, func(s string) string {
		return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
			name := placeholderPattern.FindStringSubmatch(match)[1]
			if v, ok := vars[name]; ok {
				return v
			}
			return match
		})
	})
}

// RewriteLiterals replaces literal occurrences of `literal` in the property
// tree with the `{variable}` placeholder form and reports how many strings
// changed. Import uses it when an account attribute was renamed: literals
// derived from the old value become variable references, unrelated text is
// left untouched.
func RewriteLiterals(props domain.Properties, variable, literal string) (domain.Properties, int, error) {
	if literal == "" {
		return props, 0, nil
	}
	placeholder := "{" + variable + "}"
	changed := 0
	out, err := rewriteStrings(props, func(s string) string {
		if !strings.Contains(s, literal) {
			return s
		}
		changed++
		return strings.ReplaceAll(s, literal, placeholder)
	})
	return out, changed, err
}

// rewriteStrings applies fn to every string leaf of the property tree,
// round-tripping through the canonical JSON form to stay generic over the
// typed schemas.
func rewriteStrings(props domain.Properties, fn func(string) string) (domain.Properties, error) {
	if props == nil {
		return nil, nil
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to canonicalize properties")
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to canonicalize properties")
	}
	tree = mapStrings(tree, fn)
	rewritten, err := json.Marshal(tree)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to re-encode properties")
	}
	return decodeJSONProperties(props.TemplateType(), rewritten)
}

func mapStrings(v any, fn func(string) string) any {
	switch t := v.(type) {
	case string:
		return fn(t)
	case map[string]any:
		for k, e := range t {
			t[k] = mapStrings(e, fn)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = mapStrings(e, fn)
		}
		return t
	default:
		return v
	}
}

func decodeJSONProperties(tt domain.TemplateType, raw []byte) (domain.Properties, error) {
	switch tt {
	case domain.TypeAWSRole:
		var p domain.RoleProperties
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to decode aws:iam:role properties")
		}
		return p, nil
	case domain.TypeAWSManagedPolicy:
		var p domain.ManagedPolicyProperties
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to decode aws:iam:managed_policy properties")
		}
		return p, nil
	case domain.TypeGroup:
		var p domain.GroupProperties
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to decode directory:group properties")
		}
		return p, nil
	default:
		return nil, errors.New(errors.CodeInternal, fmt.Sprintf("unknown template type '%s'", tt))
	}
}
