package apply

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noqdev/iambic-sub001/internal/adapters/provider/memory"
	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/core/service"
	"github.com/noqdev/iambic-sub001/internal/errors"
	"github.com/noqdev/iambic-sub001/internal/log"
)

func testConfig() Config {
	return Config{
		Concurrency: 4,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func testOrg() domain.Organization {
	return domain.Organization{
		ID:   "org-1",
		Name: "acme",
		Accounts: []domain.Account{
			{ID: "111", Name: "prod", Provider: domain.ProviderMemory},
			{ID: "222", Name: "staging", Provider: domain.ProviderMemory},
		},
		DefaultRule: domain.AccountRule{IncludedAccounts: []string{"*"}},
	}
}

func newEngine(t *testing.T, adapter *memory.Adapter, cfg Config) *Engine {
	t.Helper()
	registry := service.NewProviderRegistry()
	require.NoError(t, registry.RegisterAdapter(adapter, domain.TypeAWSRole))
	engine, err := NewEngine(registry, testOrg(), log.NewNop(), cfg)
	require.NoError(t, err)
	return engine
}

func createRecord(account domain.AccountID, name string) domain.ChangeRecord {
	return domain.ChangeRecord{
		Account:      account,
		Provider:     domain.ProviderMemory,
		TemplateType: domain.TypeAWSRole,
		Identifier:   name,
		Action:       domain.ActionCreate,
		Desired:      domain.RoleProperties{RoleName: name},
	}
}

func singleGroupPlan(account domain.AccountID, records ...domain.ChangeRecord) domain.Plan {
	return domain.Plan{
		ID: "plan-1",
		Groups: []domain.PlanGroup{
			{Provider: domain.ProviderMemory, Account: account, Entries: records},
		},
	}
}

func TestApplyAllSuccess(t *testing.T) {
	adapter := memory.New()
	engine := newEngine(t, adapter, testConfig())

	p := singleGroupPlan("111", createRecord("111", "role-a"), createRecord("111", "role-b"))
	result := engine.Apply(context.Background(), p, "")

	assert.Equal(t, domain.RunSuccess, result.Status)
	assert.Len(t, result.Succeeded(), 2)
	assert.False(t, result.Cancelled)

	_, ok := adapter.Resource(domain.ResourceKey{Account: "111", Type: domain.TypeAWSRole, Identifier: "role-a"})
	assert.True(t, ok)
}

func TestPartialFailureAccounting(t *testing.T) {
	adapter := memory.New()
	adapter.FailWith("create", "111", "role-b",
		errors.New(errors.CodeProviderPermissionDenied, "not authorized"))
	engine := newEngine(t, adapter, testConfig())

	p := singleGroupPlan("111",
		createRecord("111", "role-a"),
		createRecord("111", "role-b"),
		createRecord("111", "role-c"),
	)
	result := engine.Apply(context.Background(), p, "")

	assert.Equal(t, domain.RunPartialFailure, result.Status)
	require.Len(t, result.Failed(), 1)
	assert.Len(t, result.Succeeded(), 2)
	assert.Equal(t, "role-b", result.Failed()[0].Record.Identifier)
	assert.Equal(t, errors.CodeProviderPermissionDenied, errors.GetCode(result.Failed()[0].Err))

	// Permission failures are terminal: exactly one attempt.
	assert.Equal(t, 1, adapter.Calls("create", "111", "role-b"))
}

func TestRateLimitedRetriedThenSucceeds(t *testing.T) {
	adapter := memory.New()
	adapter.FailWith("create", "111", "role-a",
		errors.New(errors.CodeProviderRateLimited, "throttled"))
	engine := newEngine(t, adapter, testConfig())

	result := engine.Apply(context.Background(), singleGroupPlan("111", createRecord("111", "role-a")), "")

	assert.Equal(t, domain.RunSuccess, result.Status)
	assert.Equal(t, 2, adapter.Calls("create", "111", "role-a"), "rate-limited call must be retried")
}

func TestRateLimitedExhaustsBudget(t *testing.T) {
	adapter := memory.New()
	throttle := errors.New(errors.CodeProviderRateLimited, "throttled")
	adapter.FailWith("create", "111", "role-a", throttle, throttle, throttle, throttle, throttle)
	engine := newEngine(t, adapter, testConfig())

	result := engine.Apply(context.Background(), singleGroupPlan("111", createRecord("111", "role-a")), "")

	assert.Equal(t, domain.RunPartialFailure, result.Status)
	require.Len(t, result.Failed(), 1)
	assert.Equal(t, string(errors.CodeProviderRateLimited), result.Failed()[0].Reason)
	assert.Equal(t, 3, adapter.Calls("create", "111", "role-a"), "attempt budget is 3")
}

func TestDeleteOfAbsentResourceSucceeds(t *testing.T) {
	adapter := memory.New()
	engine := newEngine(t, adapter, testConfig())

	record := domain.ChangeRecord{
		Account:      "111",
		Provider:     domain.ProviderMemory,
		TemplateType: domain.TypeAWSRole,
		Identifier:   "already-gone",
		Action:       domain.ActionDelete,
	}
	result := engine.Apply(context.Background(), singleGroupPlan("111", record), "")

	assert.Equal(t, domain.RunSuccess, result.Status)
}

func TestScopeFilterRestrictsExecution(t *testing.T) {
	adapter := memory.New()
	engine := newEngine(t, adapter, testConfig())

	p := domain.Plan{
		ID: "plan-1",
		Groups: []domain.PlanGroup{
			{Provider: domain.ProviderMemory, Account: "111", Entries: []domain.ChangeRecord{createRecord("111", "role-a"), createRecord("111", "role-b")}},
			{Provider: domain.ProviderMemory, Account: "222", Entries: []domain.ChangeRecord{createRecord("222", "role-a")}},
		},
	}
	result := engine.Apply(context.Background(), p, "role-a")

	assert.Equal(t, domain.RunSuccess, result.Status)
	assert.Len(t, result.Entries, 2)
	assert.Equal(t, 0, adapter.Calls("create", "111", "role-b"))
}

func TestNonMutatingEntriesAreSkipped(t *testing.T) {
	adapter := memory.New()
	engine := newEngine(t, adapter, testConfig())

	noop := createRecord("111", "role-a")
	noop.Action = domain.ActionNoOp
	unmanaged := createRecord("111", "role-b")
	unmanaged.Action = domain.ActionSkippedUnmanaged

	result := engine.Apply(context.Background(), singleGroupPlan("111", noop, unmanaged), "")

	assert.Equal(t, domain.RunSuccess, result.Status)
	for _, e := range result.Entries {
		assert.Equal(t, domain.EntrySkipped, e.Status)
	}
	assert.Equal(t, 0, adapter.Calls("create", "111", "role-a"))
}

func TestCancelledRunDrainsGracefully(t *testing.T) {
	adapter := memory.New()
	engine := newEngine(t, adapter, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := singleGroupPlan("111", createRecord("111", "role-a"), createRecord("111", "role-b"))
	result := engine.Apply(ctx, p, "")

	assert.True(t, result.Cancelled)
	assert.Equal(t, domain.RunPartialFailure, result.Status)
	assert.Len(t, result.Failed(), 2)
	assert.Equal(t, 0, adapter.Calls("create", "111", "role-a"), "no new entries dispatched after cancellation")
}

func TestFatalOnUnknownAccount(t *testing.T) {
	adapter := memory.New()
	engine := newEngine(t, adapter, testConfig())

	p := singleGroupPlan("999", createRecord("999", "role-a"))
	result := engine.Apply(context.Background(), p, "")

	assert.Equal(t, domain.RunFatal, result.Status)
	assert.NotEmpty(t, result.FatalReason)
	assert.Empty(t, result.Entries, "no entry may be attempted on a fatal run")
}

func TestFatalOnUnregisteredProvider(t *testing.T) {
	registry := service.NewProviderRegistry()
	engine, err := NewEngine(registry, testOrg(), log.NewNop(), testConfig())
	require.NoError(t, err)

	p := singleGroupPlan("111", createRecord("111", "role-a"))
	result := engine.Apply(context.Background(), p, "")

	assert.Equal(t, domain.RunFatal, result.Status)
}
