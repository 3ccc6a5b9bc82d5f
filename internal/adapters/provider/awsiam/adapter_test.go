package awsiam

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/errors"
	"github.com/noqdev/iambic-sub001/internal/log"
)

// fakeIAM is a scriptable in-memory IAM backend.
type fakeIAM struct {
	roles    map[string]types.Role
	tags     map[string][]types.Tag
	attached map[string][]string
	inline   map[string]map[string]string
	calls    []string
	failOn   map[string]error
}

func newFakeIAM() *fakeIAM {
	return &fakeIAM{
		roles:    map[string]types.Role{},
		tags:     map[string][]types.Tag{},
		attached: map[string][]string{},
		inline:   map[string]map[string]string{},
		failOn:   map[string]error{},
	}
}

func (f *fakeIAM) record(op string) error {
	f.calls = append(f.calls, op)
	return f.failOn[op]
}

func (f *fakeIAM) noSuchEntity(name string) error {
	return &smithy.GenericAPIError{Code: "NoSuchEntity", Message: "role " + name + " not found"}
}

func (f *fakeIAM) ListRoles(_ context.Context, _ *iam.ListRolesInput, _ ...func(*iam.Options)) (*iam.ListRolesOutput, error) {
	if err := f.record("ListRoles"); err != nil {
		return nil, err
	}
	out := &iam.ListRolesOutput{}
	for _, r := range f.roles {
		out.Roles = append(out.Roles, r)
	}
	return out, nil
}

func (f *fakeIAM) GetRole(_ context.Context, in *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	if err := f.record("GetRole"); err != nil {
		return nil, err
	}
	r, ok := f.roles[aws.ToString(in.RoleName)]
	if !ok {
		return nil, f.noSuchEntity(aws.ToString(in.RoleName))
	}
	return &iam.GetRoleOutput{Role: &r}, nil
}

func (f *fakeIAM) ListRoleTags(_ context.Context, in *iam.ListRoleTagsInput, _ ...func(*iam.Options)) (*iam.ListRoleTagsOutput, error) {
	if err := f.record("ListRoleTags"); err != nil {
		return nil, err
	}
	if _, ok := f.roles[aws.ToString(in.RoleName)]; !ok {
		return nil, f.noSuchEntity(aws.ToString(in.RoleName))
	}
	return &iam.ListRoleTagsOutput{Tags: f.tags[aws.ToString(in.RoleName)]}, nil
}

func (f *fakeIAM) ListAttachedRolePolicies(_ context.Context, in *iam.ListAttachedRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error) {
	if err := f.record("ListAttachedRolePolicies"); err != nil {
		return nil, err
	}
	out := &iam.ListAttachedRolePoliciesOutput{}
	for _, arn := range f.attached[aws.ToString(in.RoleName)] {
		out.AttachedPolicies = append(out.AttachedPolicies, types.AttachedPolicy{PolicyArn: aws.String(arn)})
	}
	return out, nil
}

func (f *fakeIAM) ListRolePolicies(_ context.Context, in *iam.ListRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error) {
	if err := f.record("ListRolePolicies"); err != nil {
		return nil, err
	}
	out := &iam.ListRolePoliciesOutput{}
	for name := range f.inline[aws.ToString(in.RoleName)] {
		out.PolicyNames = append(out.PolicyNames, name)
	}
	return out, nil
}

func (f *fakeIAM) GetRolePolicy(_ context.Context, in *iam.GetRolePolicyInput, _ ...func(*iam.Options)) (*iam.GetRolePolicyOutput, error) {
	if err := f.record("GetRolePolicy"); err != nil {
		return nil, err
	}
	doc := f.inline[aws.ToString(in.RoleName)][aws.ToString(in.PolicyName)]
	return &iam.GetRolePolicyOutput{
		RoleName:       in.RoleName,
		PolicyName:     in.PolicyName,
		PolicyDocument: aws.String(doc),
	}, nil
}

func (f *fakeIAM) CreateRole(_ context.Context, in *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	if err := f.record("CreateRole"); err != nil {
		return nil, err
	}
	name := aws.ToString(in.RoleName)
	if _, exists := f.roles[name]; exists {
		return nil, &smithy.GenericAPIError{Code: "EntityAlreadyExists", Message: "role exists"}
	}
	f.roles[name] = types.Role{
		RoleName:                 in.RoleName,
		Path:                     in.Path,
		Description:              in.Description,
		MaxSessionDuration:       in.MaxSessionDuration,
		AssumeRolePolicyDocument: in.AssumeRolePolicyDocument,
	}
	f.tags[name] = in.Tags
	return &iam.CreateRoleOutput{}, nil
}

func (f *fakeIAM) UpdateRole(_ context.Context, in *iam.UpdateRoleInput, _ ...func(*iam.Options)) (*iam.UpdateRoleOutput, error) {
	if err := f.record("UpdateRole"); err != nil {
		return nil, err
	}
	name := aws.ToString(in.RoleName)
	r, ok := f.roles[name]
	if !ok {
		return nil, f.noSuchEntity(name)
	}
	if in.Description != nil {
		r.Description = in.Description
	}
	if in.MaxSessionDuration != nil {
		r.MaxSessionDuration = in.MaxSessionDuration
	}
	f.roles[name] = r
	return &iam.UpdateRoleOutput{}, nil
}

func (f *fakeIAM) UpdateAssumeRolePolicy(_ context.Context, in *iam.UpdateAssumeRolePolicyInput, _ ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error) {
	if err := f.record("UpdateAssumeRolePolicy"); err != nil {
		return nil, err
	}
	name := aws.ToString(in.RoleName)
	r, ok := f.roles[name]
	if !ok {
		return nil, f.noSuchEntity(name)
	}
	r.AssumeRolePolicyDocument = in.PolicyDocument
	f.roles[name] = r
	return &iam.UpdateAssumeRolePolicyOutput{}, nil
}

func (f *fakeIAM) TagRole(_ context.Context, in *iam.TagRoleInput, _ ...func(*iam.Options)) (*iam.TagRoleOutput, error) {
	if err := f.record("TagRole"); err != nil {
		return nil, err
	}
	f.tags[aws.ToString(in.RoleName)] = in.Tags
	return &iam.TagRoleOutput{}, nil
}

func (f *fakeIAM) AttachRolePolicy(_ context.Context, in *iam.AttachRolePolicyInput, _ ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	if err := f.record("AttachRolePolicy"); err != nil {
		return nil, err
	}
	name := aws.ToString(in.RoleName)
	f.attached[name] = append(f.attached[name], aws.ToString(in.PolicyArn))
	return &iam.AttachRolePolicyOutput{}, nil
}

func (f *fakeIAM) DetachRolePolicy(_ context.Context, in *iam.DetachRolePolicyInput, _ ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	if err := f.record("DetachRolePolicy"); err != nil {
		return nil, err
	}
	name := aws.ToString(in.RoleName)
	arn := aws.ToString(in.PolicyArn)
	var keep []string
	for _, a := range f.attached[name] {
		if a != arn {
			keep = append(keep, a)
		}
	}
	f.attached[name] = keep
	return &iam.DetachRolePolicyOutput{}, nil
}

func (f *fakeIAM) PutRolePolicy(_ context.Context, in *iam.PutRolePolicyInput, _ ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	if err := f.record("PutRolePolicy"); err != nil {
		return nil, err
	}
	name := aws.ToString(in.RoleName)
	if f.inline[name] == nil {
		f.inline[name] = map[string]string{}
	}
	f.inline[name][aws.ToString(in.PolicyName)] = aws.ToString(in.PolicyDocument)
	return &iam.PutRolePolicyOutput{}, nil
}

func (f *fakeIAM) DeleteRolePolicy(_ context.Context, in *iam.DeleteRolePolicyInput, _ ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error) {
	if err := f.record("DeleteRolePolicy"); err != nil {
		return nil, err
	}
	delete(f.inline[aws.ToString(in.RoleName)], aws.ToString(in.PolicyName))
	return &iam.DeleteRolePolicyOutput{}, nil
}

func (f *fakeIAM) DeleteRole(_ context.Context, in *iam.DeleteRoleInput, _ ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	if err := f.record("DeleteRole"); err != nil {
		return nil, err
	}
	name := aws.ToString(in.RoleName)
	if _, ok := f.roles[name]; !ok {
		return nil, f.noSuchEntity(name)
	}
	if len(f.attached[name]) > 0 || len(f.inline[name]) > 0 {
		return nil, &smithy.GenericAPIError{Code: "DeleteConflict", Message: "role has attached policies"}
	}
	delete(f.roles, name)
	return &iam.DeleteRoleOutput{}, nil
}

func testAdapter(t *testing.T, fake *fakeIAM) (*Adapter, domain.Account) {
	t.Helper()
	account := domain.Account{ID: "111122223333", Name: "prod", Provider: domain.ProviderAWS}
	adapter, err := NewAdapter(func(context.Context, domain.Account) (IAMClient, STSClient, error) {
		return fake, nil, nil
	}, log.NewNop())
	require.NoError(t, err)
	return adapter, account
}

func TestListReturnsManagedAndUnmanagedRoles(t *testing.T) {
	fake := newFakeIAM()
	fake.roles["app-runner"] = types.Role{
		RoleName:                 aws.String("app-runner"),
		Path:                     aws.String("/service/"),
		AssumeRolePolicyDocument: aws.String("%7B%22Version%22%3A%222012-10-17%22%7D"),
		MaxSessionDuration:       aws.Int32(3600),
	}
	fake.tags["app-runner"] = []types.Tag{
		{Key: aws.String("managed_by"), Value: aws.String("iambic")},
		{Key: aws.String("team"), Value: aws.String("identity")},
	}
	fake.attached["app-runner"] = []string{"arn:aws:iam::aws:policy/ReadOnlyAccess"}
	fake.inline["app-runner"] = map[string]string{"s3-read": `{"Version":"2012-10-17"}`}
	fake.roles["legacy"] = types.Role{RoleName: aws.String("legacy"), Path: aws.String("/")}

	adapter, account := testAdapter(t, fake)
	resources, err := adapter.List(context.Background(), account, domain.TypeAWSRole)
	require.NoError(t, err)
	require.Len(t, resources, 2)

	byName := map[string]domain.LiveResource{}
	for _, r := range resources {
		byName[r.Identifier] = r
	}
	managed := byName["app-runner"]
	assert.Equal(t, domain.ModeReadAndWrite, managed.Mode)
	props := managed.Properties.(domain.RoleProperties)
	assert.Equal(t, "/service/", props.Path)
	assert.Equal(t, int32(3600), props.MaxSessionDuration)
	assert.Equal(t, `{"Version":"2012-10-17"}`, props.AssumeRolePolicy)
	assert.Equal(t, []string{"arn:aws:iam::aws:policy/ReadOnlyAccess"}, props.ManagedPolicyARNs)
	assert.Equal(t, `{"Version":"2012-10-17"}`, props.InlinePolicies["s3-read"])

	assert.Equal(t, domain.ModeReadOnly, byName["legacy"].Mode)
}

func TestListRejectsForeignTemplateType(t *testing.T) {
	adapter, account := testAdapter(t, newFakeIAM())
	_, err := adapter.List(context.Background(), account, domain.TypeGroup)
	assert.Equal(t, errors.CodeProviderNotRegistered, errors.GetCode(err))
}

func TestCreateRoleAttachesPoliciesAndInjectsManagedTag(t *testing.T) {
	fake := newFakeIAM()
	adapter, account := testAdapter(t, fake)

	err := adapter.Create(context.Background(), account, domain.RoleProperties{
		RoleName:          "deployer",
		AssumeRolePolicy:  `{"Version":"2012-10-17"}`,
		ManagedPolicyARNs: []string{"arn:aws:iam::aws:policy/PowerUserAccess"},
		InlinePolicies:    map[string]string{"extra": `{"Statement":[]}`},
	})
	require.NoError(t, err)

	require.Contains(t, fake.roles, "deployer")
	assert.Equal(t, []string{"arn:aws:iam::aws:policy/PowerUserAccess"}, fake.attached["deployer"])
	assert.Contains(t, fake.inline["deployer"], "extra")
	assert.Equal(t, domain.ModeReadAndWrite, modeFromTags(tagsFromSDK(fake.tags["deployer"])))
}

func TestCreateExistingRoleIsConflict(t *testing.T) {
	fake := newFakeIAM()
	fake.roles["deployer"] = types.Role{RoleName: aws.String("deployer")}
	adapter, account := testAdapter(t, fake)

	err := adapter.Create(context.Background(), account, domain.RoleProperties{RoleName: "deployer"})
	assert.Equal(t, errors.CodeProviderConflict, errors.GetCode(err))
}

func TestUpdateReconcilesPolicies(t *testing.T) {
	fake := newFakeIAM()
	fake.roles["deployer"] = types.Role{RoleName: aws.String("deployer")}
	fake.attached["deployer"] = []string{"arn:aws:iam::aws:policy/Old"}
	fake.inline["deployer"] = map[string]string{"stale": `{}`}
	adapter, account := testAdapter(t, fake)

	err := adapter.Update(context.Background(), account, domain.RoleProperties{
		RoleName:          "deployer",
		Description:       "ci deploy role",
		ManagedPolicyARNs: []string{"arn:aws:iam::aws:policy/New"},
		InlinePolicies:    map[string]string{"fresh": `{"Statement":[]}`},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"arn:aws:iam::aws:policy/New"}, fake.attached["deployer"])
	assert.NotContains(t, fake.inline["deployer"], "stale")
	assert.Contains(t, fake.inline["deployer"], "fresh")
	assert.Equal(t, "ci deploy role", aws.ToString(fake.roles["deployer"].Description))
}

func TestDeleteDetachesEverythingFirst(t *testing.T) {
	fake := newFakeIAM()
	fake.roles["deployer"] = types.Role{RoleName: aws.String("deployer")}
	fake.attached["deployer"] = []string{"arn:aws:iam::aws:policy/Old"}
	fake.inline["deployer"] = map[string]string{"stale": `{}`}
	adapter, account := testAdapter(t, fake)

	err := adapter.Delete(context.Background(), account, domain.TypeAWSRole, "deployer")
	require.NoError(t, err)
	assert.NotContains(t, fake.roles, "deployer")
}

func TestDeleteMissingRoleIsNotFound(t *testing.T) {
	adapter, account := testAdapter(t, newFakeIAM())
	err := adapter.Delete(context.Background(), account, domain.TypeAWSRole, "ghost")
	assert.Equal(t, errors.CodeProviderNotFound, errors.GetCode(err))
}

func TestClassifyTaxonomy(t *testing.T) {
	cases := []struct {
		apiCode string
		want    errors.Code
	}{
		{"Throttling", errors.CodeProviderRateLimited},
		{"RequestLimitExceeded", errors.CodeProviderRateLimited},
		{"AccessDenied", errors.CodeProviderPermissionDenied},
		{"NoSuchEntity", errors.CodeProviderNotFound},
		{"EntityAlreadyExists", errors.CodeProviderConflict},
		{"DeleteConflict", errors.CodeProviderConflict},
		{"ServiceFailure", errors.CodeProviderTransient},
	}
	for _, tc := range cases {
		t.Run(tc.apiCode, func(t *testing.T) {
			err := classify(&smithy.GenericAPIError{Code: tc.apiCode, Message: "boom"}, "list roles in account", "111122223333")
			assert.Equal(t, tc.want, errors.GetCode(err))
		})
	}
}
