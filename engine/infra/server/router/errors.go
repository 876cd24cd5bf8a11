package router

// Problem codes carried in the "code" member of problem documents.
const (
	ErrInternalCode           = "internal_error"
	ErrBadRequestCode         = "bad_request"
	ErrValidationCode         = "validation_failed"
	ErrNotFoundCode           = "not_found"
	ErrPayloadTooLargeCode    = "payload_too_large"
	ErrRateLimitedCode        = "rate_limited"
	ErrQuotaExceededCode      = "quota_exceeded"
	ErrUpstreamCode           = "upstream_failed"
	ErrServiceUnavailableCode = "service_unavailable"
)
