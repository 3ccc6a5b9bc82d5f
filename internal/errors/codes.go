package errors

type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeInternal         Code = "INTERNAL_ERROR"
	CodeConfigValidation Code = "CONFIG_VALIDATION_ERROR"
	CodeConfigReadError  Code = "CONFIG_READ_ERROR"
	CodeConfigParseError Code = "CONFIG_PARSE_ERROR"

	// Template store / document handling
	CodeTemplateParseError     Code = "TEMPLATE_PARSE_ERROR"
	CodeTemplateSerializeError Code = "TEMPLATE_SERIALIZE_ERROR"
	CodeRepositoryError        Code = "REPOSITORY_ERROR"

	// Account resolution
	CodeUnknownAccount Code = "UNKNOWN_ACCOUNT"

	// Provider taxonomy: the uniform result signals every adapter maps into.
	CodeProviderRateLimited      Code = "PROVIDER_RATE_LIMITED"
	CodeProviderTransient        Code = "PROVIDER_TRANSIENT"
	CodeProviderPermissionDenied Code = "PROVIDER_PERMISSION_DENIED"
	CodeProviderNotFound         Code = "PROVIDER_NOT_FOUND"
	CodeProviderConflict         Code = "PROVIDER_CONFLICT"
	CodeProviderNotRegistered    Code = "PROVIDER_NOT_REGISTERED"

	// Approval gate
	CodeApprovalUnknownApprover Code = "APPROVAL_UNKNOWN_APPROVER"
	CodeApprovalBadSignature    Code = "APPROVAL_BAD_SIGNATURE"
	CodeApprovalExpired         Code = "APPROVAL_EXPIRED"

	CodeReconciliationConflict Code = "RECONCILIATION_CONFLICT"
	CodeMalformedPlan          Code = "MALFORMED_PLAN"
)

func (c Code) String() string {
	return string(c)
}

// Retryable reports whether an error carrying this code should be retried
// with backoff before being surfaced as an entry-level failure.
func (c Code) Retryable() bool {
	return c == CodeProviderRateLimited || c == CodeProviderTransient
}
