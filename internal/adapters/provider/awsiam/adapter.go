// Package awsiam implements the provider adapter for AWS IAM roles on top
// of aws-sdk-go-v2.
package awsiam

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/core/ports"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

type Adapter struct {
	factory ClientFactory
	logger  ports.Logger

	mu      sync.Mutex
	clients map[domain.AccountID]IAMClient
}

var _ ports.ProviderAdapter = (*Adapter)(nil)

// NewAdapter builds the adapter around a per-account client factory.
func NewAdapter(factory ClientFactory, logger ports.Logger) (*Adapter, error) {
	if factory == nil {
		return nil, errors.New(errors.CodeConfigValidation, "awsiam adapter requires a client factory")
	}
	return &Adapter{
		factory: factory,
		logger:  logger,
		clients: make(map[domain.AccountID]IAMClient),
	}, nil
}

// DefaultClientFactory builds clients from one ambient SDK config. The
// account id reported by STS must match the account the engine thinks it
// is talking to; a mismatch aborts rather than touching the wrong tenancy.
func DefaultClientFactory(cfg aws.Config) ClientFactory {
	return func(ctx context.Context, account domain.Account) (IAMClient, STSClient, error) {
		iamClient := iam.NewFromConfig(cfg)
		stsClient := sts.NewFromConfig(cfg)
		identity, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return nil, nil, classify(err, "get caller identity for account", string(account.ID))
		}
		if got := aws.ToString(identity.Account); got != string(account.ID) {
			return nil, nil, errors.New(errors.CodeConfigValidation,
				fmt.Sprintf("credentials resolve to account %s, expected %s", got, account.ID))
		}
		return iamClient, stsClient, nil
	}
}

func (a *Adapter) Kind() domain.ProviderKind {
	return domain.ProviderAWS
}

func (a *Adapter) client(ctx context.Context, account domain.Account) (IAMClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.clients[account.ID]; ok {
		return c, nil
	}
	c, _, err := a.factory(ctx, account)
	if err != nil {
		return nil, err
	}
	a.clients[account.ID] = c
	return c, nil
}

func (a *Adapter) List(ctx context.Context, account domain.Account, templateType domain.TemplateType) ([]domain.LiveResource, error) {
	if templateType != domain.TypeAWSRole {
		return nil, errors.New(errors.CodeProviderNotRegistered,
			fmt.Sprintf("awsiam adapter does not own template type '%s'", templateType))
	}
	client, err := a.client(ctx, account)
	if err != nil {
		return nil, err
	}

	var out []domain.LiveResource
	var marker *string
	for {
		page, err := client.ListRoles(ctx, &iam.ListRolesInput{Marker: marker})
		if err != nil {
			return nil, classify(err, "list roles in account", string(account.ID))
		}
		for _, role := range page.Roles {
			res, err := a.describeRole(ctx, client, account, aws.ToString(role.RoleName))
			if err != nil {
				return nil, err
			}
			out = append(out, res)
		}
		if !page.IsTruncated {
			break
		}
		marker = page.Marker
	}
	a.logger.Debugf(ctx, "Listed %d roles in account %s", len(out), account.ID)
	return out, nil
}

func (a *Adapter) describeRole(ctx context.Context, client IAMClient, account domain.Account, name string) (domain.LiveResource, error) {
	tagsOut, err := client.ListRoleTags(ctx, &iam.ListRoleTagsInput{RoleName: aws.String(name)})
	if err != nil {
		return domain.LiveResource{}, classify(err, "list tags for role", name)
	}
	tags := tagsFromSDK(tagsOut.Tags)

	attachedOut, err := client.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{RoleName: aws.String(name)})
	if err != nil {
		return domain.LiveResource{}, classify(err, "list attached policies for role", name)
	}
	var attached []string
	for _, p := range attachedOut.AttachedPolicies {
		attached = append(attached, aws.ToString(p.PolicyArn))
	}

	inlineOut, err := client.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{RoleName: aws.String(name)})
	if err != nil {
		return domain.LiveResource{}, classify(err, "list inline policies for role", name)
	}
	var inline map[string]string
	for _, policyName := range inlineOut.PolicyNames {
		policyOut, err := client.GetRolePolicy(ctx, &iam.GetRolePolicyInput{
			RoleName:   aws.String(name),
			PolicyName: aws.String(policyName),
		})
		if err != nil {
			return domain.LiveResource{}, classify(err, "get inline policy for role", name)
		}
		if inline == nil {
			inline = make(map[string]string)
		}
		inline[policyName] = decodePolicyDocument(aws.ToString(policyOut.PolicyDocument))
	}

	// ListRoles pages omit tags and truncate the trust policy, so the
	// header fields come from GetRole.
	roleOut, err := client.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err != nil {
		return domain.LiveResource{}, classify(err, "read role", name)
	}
	return domain.LiveResource{
		Account:      account.ID,
		Provider:     domain.ProviderAWS,
		TemplateType: domain.TypeAWSRole,
		Identifier:   name,
		Mode:         modeFromTags(tags),
		Properties:   roleToProperties(*roleOut.Role, tags, attached, inline),
	}, nil
}

func (a *Adapter) Create(ctx context.Context, account domain.Account, properties domain.Properties) error {
	props, err := roleProps(properties)
	if err != nil {
		return err
	}
	client, err := a.client(ctx, account)
	if err != nil {
		return err
	}

	input := &iam.CreateRoleInput{
		RoleName:                 aws.String(props.RoleName),
		AssumeRolePolicyDocument: aws.String(props.AssumeRolePolicy),
		Tags:                     tagsToSDK(props.Tags),
	}
	if props.Path != "" {
		input.Path = aws.String(props.Path)
	}
	if props.Description != "" {
		input.Description = aws.String(props.Description)
	}
	if props.MaxSessionDuration > 0 {
		input.MaxSessionDuration = aws.Int32(props.MaxSessionDuration)
	}
	if props.PermissionsBoundary != "" {
		input.PermissionsBoundary = aws.String(props.PermissionsBoundary)
	}
	if _, err := client.CreateRole(ctx, input); err != nil {
		return classify(err, "create role", props.RoleName)
	}
	return a.syncPolicies(ctx, client, props, nil, nil)
}

func (a *Adapter) Update(ctx context.Context, account domain.Account, properties domain.Properties) error {
	props, err := roleProps(properties)
	if err != nil {
		return err
	}
	client, err := a.client(ctx, account)
	if err != nil {
		return err
	}

	updateInput := &iam.UpdateRoleInput{RoleName: aws.String(props.RoleName)}
	if props.Description != "" {
		updateInput.Description = aws.String(props.Description)
	}
	if props.MaxSessionDuration > 0 {
		updateInput.MaxSessionDuration = aws.Int32(props.MaxSessionDuration)
	}
	if _, err := client.UpdateRole(ctx, updateInput); err != nil {
		return classify(err, "update role", props.RoleName)
	}
	if props.AssumeRolePolicy != "" {
		_, err := client.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
			RoleName:       aws.String(props.RoleName),
			PolicyDocument: aws.String(props.AssumeRolePolicy),
		})
		if err != nil {
			return classify(err, "update assume role policy for role", props.RoleName)
		}
	}
	if len(props.Tags) > 0 {
		_, err := client.TagRole(ctx, &iam.TagRoleInput{
			RoleName: aws.String(props.RoleName),
			Tags:     tagsToSDK(props.Tags),
		})
		if err != nil {
			return classify(err, "tag role", props.RoleName)
		}
	}

	current, err := a.describeRole(ctx, client, account, props.RoleName)
	if err != nil {
		return err
	}
	live := current.Properties.(domain.RoleProperties)
	return a.syncPolicies(ctx, client, props, live.ManagedPolicyARNs, live.InlinePolicies)
}

// syncPolicies reconciles attached and inline policies to the desired set.
func (a *Adapter) syncPolicies(ctx context.Context, client IAMClient, props domain.RoleProperties, liveAttached []string, liveInline map[string]string) error {
	desiredAttached := make(map[string]struct{}, len(props.ManagedPolicyARNs))
	for _, arn := range props.ManagedPolicyARNs {
		desiredAttached[arn] = struct{}{}
	}
	for _, arn := range liveAttached {
		if _, keep := desiredAttached[arn]; keep {
			delete(desiredAttached, arn)
			continue
		}
		_, err := client.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName:  aws.String(props.RoleName),
			PolicyArn: aws.String(arn),
		})
		if err != nil {
			return classify(err, "detach policy from role", props.RoleName)
		}
	}
	for arn := range desiredAttached {
		_, err := client.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(props.RoleName),
			PolicyArn: aws.String(arn),
		})
		if err != nil {
			return classify(err, "attach policy to role", props.RoleName)
		}
	}

	for name, doc := range props.InlinePolicies {
		_, err := client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
			RoleName:       aws.String(props.RoleName),
			PolicyName:     aws.String(name),
			PolicyDocument: aws.String(doc),
		})
		if err != nil {
			return classify(err, "put inline policy on role", props.RoleName)
		}
	}
	for name := range liveInline {
		if _, keep := props.InlinePolicies[name]; keep {
			continue
		}
		_, err := client.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
			RoleName:   aws.String(props.RoleName),
			PolicyName: aws.String(name),
		})
		if err != nil {
			return classify(err, "delete inline policy from role", props.RoleName)
		}
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, account domain.Account, templateType domain.TemplateType, identifier string) error {
	if templateType != domain.TypeAWSRole {
		return errors.New(errors.CodeProviderNotRegistered,
			fmt.Sprintf("awsiam adapter does not own template type '%s'", templateType))
	}
	client, err := a.client(ctx, account)
	if err != nil {
		return err
	}

	// A role cannot be deleted while policies remain on it.
	current, err := a.describeRole(ctx, client, account, identifier)
	if err != nil {
		return err
	}
	live := current.Properties.(domain.RoleProperties)
	for _, arn := range live.ManagedPolicyARNs {
		_, err := client.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName:  aws.String(identifier),
			PolicyArn: aws.String(arn),
		})
		if err != nil {
			return classify(err, "detach policy from role", identifier)
		}
	}
	for name := range live.InlinePolicies {
		_, err := client.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
			RoleName:   aws.String(identifier),
			PolicyName: aws.String(name),
		})
		if err != nil {
			return classify(err, "delete inline policy from role", identifier)
		}
	}
	if _, err := client.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(identifier)}); err != nil {
		return classify(err, "delete role", identifier)
	}
	return nil
}

func roleProps(properties domain.Properties) (domain.RoleProperties, error) {
	props, ok := properties.(domain.RoleProperties)
	if !ok {
		return domain.RoleProperties{}, errors.New(errors.CodeInternal,
			fmt.Sprintf("awsiam adapter received %T properties", properties))
	}
	return props, nil
}
