package errors

type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodePolicyRejected   Code = "POLICY_REJECTED"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeBusUnavailable   Code = "BUS_UNAVAILABLE"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
)

// 策略拒绝的机器可读原因码
const (
	ReasonContentPolicy = "content_policy"
	ReasonRateLimited   = "rate_limited"
)
