package security

// Event type constants for security audit logging.
const (
	// Token lifecycle events

	// EventTokenIssued is logged when a grant handler obtains a token from the issuer
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token grant succeeds
	EventTokenRefreshed = "token_refreshed"

	// Authorization code events

	// EventAuthorizationCodeIssued is logged when the code response type persists a code
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationCodeRedeemed is logged when a code is exchanged for a token
	EventAuthorizationCodeRedeemed = "authorization_code_redeemed"

	// EventAuthorizationCodeReuseDetected is logged when a code was already
	// consumed by a concurrent or earlier redemption
	EventAuthorizationCodeReuseDetected = "authorization_code_reuse_detected"

	// Security violation events

	// EventAuthFailure is logged when client or resource owner authentication fails
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventInvalidRedirect is logged when a redirect URI is missing or does not match
	EventInvalidRedirect = "invalid_redirect"

	// EventScopeEscalationAttempt is logged when a client asks for more than was granted
	EventScopeEscalationAttempt = "scope_escalation_attempt"
)
