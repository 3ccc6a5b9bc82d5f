package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/errors"
	"github.com/noqdev/iambic-sub001/pkg/structdiff"
)

func testOrg() domain.Organization {
	return domain.Organization{
		ID:   "org-1",
		Name: "acme",
		Accounts: []domain.Account{
			{ID: "111", Name: "prod", Provider: domain.ProviderAWS},
			{ID: "222", Name: "staging", Provider: domain.ProviderAWS},
		},
		DefaultRule: domain.AccountRule{IncludedAccounts: []string{"*"}},
	}
}

func roleTemplate(id string, deleted bool) domain.Template {
	return domain.Template{
		TemplateType: domain.TypeAWSRole,
		Identifier:   id,
		Deleted:      deleted,
		Properties:   domain.RoleProperties{RoleName: id, Path: "/"},
	}
}

func liveRole(account domain.AccountID, id string, props domain.RoleProperties) domain.LiveResource {
	return domain.LiveResource{
		Account:      account,
		Provider:     domain.ProviderAWS,
		TemplateType: domain.TypeAWSRole,
		Identifier:   id,
		Mode:         domain.ModeReadAndWrite,
		Properties:   props,
	}
}

func actionsFor(res Result, account domain.AccountID) map[string]domain.Action {
	out := make(map[string]domain.Action)
	for _, g := range res.Plan.Groups {
		if g.Account != account {
			continue
		}
		for _, e := range g.Entries {
			out[e.Identifier] = e.Action
		}
	}
	return out
}

func TestDeletedTemplateAlwaysPlansDelete(t *testing.T) {
	org := testOrg()
	tmpl := roleTemplate("old-role", true)
	// Live content differs wildly from desired; deletion intent dominates.
	live := []domain.LiveResource{
		liveRole("111", "old-role", domain.RoleProperties{RoleName: "old-role", Description: "drifted"}),
	}

	res, err := ComputePlan(org, []domain.Template{tmpl}, live, nil)
	require.NoError(t, err)

	for _, account := range []domain.AccountID{"111", "222"} {
		actions := actionsFor(res, account)
		assert.Equal(t, domain.ActionDelete, actions["old-role"], "account %s", account)
	}
}

func TestMissingLivePlansCreate(t *testing.T) {
	org := testOrg()
	res, err := ComputePlan(org, []domain.Template{roleTemplate("new-role", false)}, nil, nil)
	require.NoError(t, err)

	actions := actionsFor(res, "111")
	assert.Equal(t, domain.ActionCreate, actions["new-role"])
}

func TestUnmanagedLiveIsNeverMutated(t *testing.T) {
	org := testOrg()
	unmanaged := liveRole("111", "foreign-role", domain.RoleProperties{RoleName: "foreign-role", Description: "someone else's"})
	unmanaged.Mode = domain.ModeReadOnly

	res, err := ComputePlan(org, []domain.Template{roleTemplate("foreign-role", false)}, []domain.LiveResource{unmanaged}, nil)
	require.NoError(t, err)

	actions := actionsFor(res, "111")
	assert.Equal(t, domain.ActionSkippedUnmanaged, actions["foreign-role"])
}

func TestStructuralDeltaUpdateAndNoOp(t *testing.T) {
	org := testOrg()
	tmpl := roleTemplate("web-role", false)
	live := []domain.LiveResource{
		liveRole("111", "web-role", domain.RoleProperties{RoleName: "web-role", Path: "/"}),
		liveRole("222", "web-role", domain.RoleProperties{RoleName: "web-role", Path: "/legacy/"}),
	}

	res, err := ComputePlan(org, []domain.Template{tmpl}, live, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionNoOp, actionsFor(res, "111")["web-role"])
	assert.Equal(t, domain.ActionUpdate, actionsFor(res, "222")["web-role"])

	for _, g := range res.Plan.Groups {
		if g.Account != "222" {
			continue
		}
		require.Len(t, g.Entries, 1)
		require.Len(t, g.Entries[0].Delta, 1)
		assert.Equal(t, "path", g.Entries[0].Delta[0].Path)
	}
}

func TestInterpolationResolvedForDiffOnly(t *testing.T) {
	org := testOrg()
	tmpl := domain.Template{
		TemplateType: domain.TypeAWSRole,
		Identifier:   "scoped-role",
		Properties:   domain.RoleProperties{RoleName: "{account_name}-role"},
	}
	live := []domain.LiveResource{
		liveRole("111", "scoped-role", domain.RoleProperties{RoleName: "prod-role"}),
	}

	res, err := ComputePlan(org, []domain.Template{tmpl}, live, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionNoOp, actionsFor(res, "111")["scoped-role"])
}

func TestDeleteOrderedAfterCreateUpdateWithinGroup(t *testing.T) {
	org := testOrg()
	org.Accounts = org.Accounts[:1]
	templates := []domain.Template{
		roleTemplate("gone-role", true),
		roleTemplate("new-role", false),
	}
	live := []domain.LiveResource{
		liveRole("111", "gone-role", domain.RoleProperties{RoleName: "gone-role"}),
	}

	res, err := ComputePlan(org, templates, live, nil)
	require.NoError(t, err)
	require.Len(t, res.Plan.Groups, 1)
	entries := res.Plan.Groups[0].Entries
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ActionCreate, entries[0].Action)
	assert.Equal(t, domain.ActionDelete, entries[1].Action)
}

func TestConfigErrorFatalToTemplateOnly(t *testing.T) {
	org := testOrg()
	broken := roleTemplate("broken", false)
	broken.IncludedAccounts = []string{"no-such-account"}
	ok := roleTemplate("fine", false)

	res, err := ComputePlan(org, []domain.Template{broken, ok}, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, errors.CodeUnknownAccount, errors.GetCode(res.Issues[0].Err))
	assert.Equal(t, domain.ActionCreate, actionsFor(res, "111")["fine"], "sibling template still plans")
}

func TestOutOfBandEditRequiresReview(t *testing.T) {
	org := testOrg()
	org.Accounts = org.Accounts[:1]
	tmpl := roleTemplate("guarded-role", false)
	liveProps := domain.RoleProperties{RoleName: "guarded-role", Path: "/edited-out-of-band/"}
	live := []domain.LiveResource{liveRole("111", "guarded-role", liveProps)}

	// Snapshot recorded a different content hash at last import.
	staleHash, err := structdiff.Hash(domain.RoleProperties{RoleName: "guarded-role", Path: "/"})
	require.NoError(t, err)
	snapshot := domain.Snapshot{
		domain.ResourceKey{Account: "111", Type: domain.TypeAWSRole, Identifier: "guarded-role"}: staleHash,
	}

	res, err := ComputePlan(org, []domain.Template{tmpl}, live, snapshot)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionReviewRequired, actionsFor(res, "111")["guarded-role"])
}

func TestReadOnlyAccountPlansButNeverWrites(t *testing.T) {
	org := testOrg()
	org.Accounts = []domain.Account{
		{ID: "111", Name: "prod", Provider: domain.ProviderAWS, Mode: domain.ModeReadOnly},
	}
	res, err := ComputePlan(org, []domain.Template{roleTemplate("audit-role", false)}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSkippedReadOnly, actionsFor(res, "111")["audit-role"])
}
