package awsiam

import (
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
)

// managedByTag marks resources this engine owns. A live role without the
// tag is foreign: it is imported read-only and never overwritten.
const (
	managedByTag   = "managed_by"
	managedByValue = "iambic"
)

func roleToProperties(role types.Role, tags map[string]string, attached []string, inline map[string]string) domain.RoleProperties {
	props := domain.RoleProperties{
		RoleName:          aws.ToString(role.RoleName),
		Path:              aws.ToString(role.Path),
		Description:       aws.ToString(role.Description),
		AssumeRolePolicy:  decodePolicyDocument(aws.ToString(role.AssumeRolePolicyDocument)),
		ManagedPolicyARNs: attached,
		InlinePolicies:    inline,
		Tags:              tags,
	}
	if role.MaxSessionDuration != nil {
		props.MaxSessionDuration = *role.MaxSessionDuration
	}
	if role.PermissionsBoundary != nil {
		props.PermissionsBoundary = aws.ToString(role.PermissionsBoundary.PermissionsBoundaryArn)
	}
	return props
}

func modeFromTags(tags map[string]string) domain.ManagementMode {
	if tags[managedByTag] == managedByValue {
		return domain.ModeReadAndWrite
	}
	return domain.ModeReadOnly
}

func tagsToSDK(tags map[string]string) []types.Tag {
	out := make([]types.Tag, 0, len(tags)+1)
	seenManaged := false
	for k, v := range tags {
		if k == managedByTag {
			seenManaged = true
		}
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	if !seenManaged {
		out = append(out, types.Tag{Key: aws.String(managedByTag), Value: aws.String(managedByValue)})
	}
	return out
}

func tagsFromSDK(tags []types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return out
}

// IAM returns policy documents URL-encoded.
func decodePolicyDocument(doc string) string {
	decoded, err := url.QueryUnescape(doc)
	if err != nil {
		return doc
	}
	return decoded
}
