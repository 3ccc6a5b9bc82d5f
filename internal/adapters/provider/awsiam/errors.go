package awsiam

import (
	stderrs "errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/noqdev/iambic-sub001/internal/errors"
)

// classify maps an AWS SDK error into the uniform provider taxonomy so the
// engines can treat every provider alike.
func classify(err error, operation, resource string) error {
	if err == nil {
		return nil
	}
	code := apiErrorCode(err)
	msg := fmt.Sprintf("%s '%s'", operation, resource)

	switch {
	case isThrottling(code, err):
		return errors.Wrap(err, errors.CodeProviderRateLimited, msg)
	case isPermissionDenied(code, err):
		return errors.Wrap(err, errors.CodeProviderPermissionDenied, msg)
	case isNotFound(code, err):
		return errors.Wrap(err, errors.CodeProviderNotFound, msg)
	case isConflict(code):
		return errors.Wrap(err, errors.CodeProviderConflict, msg)
	default:
		return errors.Wrap(err, errors.CodeProviderTransient, msg)
	}
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if stderrs.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isThrottling(code string, err error) bool {
	switch code {
	case "Throttling", "ThrottlingException", "TooManyRequestsException", "RequestLimitExceeded":
		return true
	}
	return strings.Contains(err.Error(), "Throttling")
}

func isPermissionDenied(code string, err error) bool {
	switch code {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation", "InvalidClientTokenId":
		return true
	}
	return strings.Contains(err.Error(), "AccessDenied")
}

func isNotFound(code string, err error) bool {
	if code == "NoSuchEntity" || code == "NoSuchEntityException" {
		return true
	}
	return strings.Contains(err.Error(), "NoSuchEntity")
}

func isConflict(code string) bool {
	switch code {
	case "EntityAlreadyExists", "EntityAlreadyExistsException", "DeleteConflict", "ConcurrentModification":
		return true
	}
	return false
}
