package domain

import "time"

type Action string

const (
	ActionCreate           Action = "CREATE"
	ActionUpdate           Action = "UPDATE"
	ActionDelete           Action = "DELETE"
	ActionNoOp             Action = "NO_OP"
	ActionSkippedUnmanaged Action = "SKIPPED_UNMANAGED"
	ActionSkippedReadOnly  Action = "SKIPPED_READ_ONLY"
	ActionReviewRequired   Action = "REVIEW_REQUIRED"
)

// Mutating reports whether the action results in a provider write.
func (a Action) Mutating() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// PropertyDelta is one field-level difference between desired and live
// state, path in dotted/indexed form (e.g. "tags.owner", "members[2]").
type PropertyDelta struct {
	Path    string
	Desired any
	Live    any
}

// ChangeRecord is one (account, template, resource) reconciliation decision.
type ChangeRecord struct {
	Account      AccountID
	Provider     ProviderKind
	TemplateType TemplateType
	Identifier   string
	Action       Action
	Delta        []PropertyDelta

	// Desired carries the interpolated properties the apply engine will
	// write; nil for Delete and non-mutating actions.
	Desired Properties
}

func (c ChangeRecord) ResourceKey() ResourceKey {
	return ResourceKey{Account: c.Account, Type: c.TemplateType, Identifier: c.Identifier}
}

// PlanGroup holds the entries for one (provider, account) pair. Groups may
// be applied concurrently; entries within a group are strictly sequential.
type PlanGroup struct {
	Provider ProviderKind
	Account  AccountID
	Entries  []ChangeRecord
}

// Plan is the ordered set of change records for one apply run. It is
// immutable once computed: the apply engine reads it, never edits it.
type Plan struct {
	ID        string
	CreatedAt time.Time
	Groups    []PlanGroup
}

// Empty reports whether the plan contains no mutating entries.
func (p Plan) Empty() bool {
	for _, g := range p.Groups {
		for _, e := range g.Entries {
			if e.Action.Mutating() {
				return false
			}
		}
	}
	return true
}

// Summary counts entries per action.
func (p Plan) Summary() map[Action]int {
	out := make(map[Action]int)
	for _, g := range p.Groups {
		for _, e := range g.Entries {
			out[e.Action]++
		}
	}
	return out
}
