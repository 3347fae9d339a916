package providers

import (
	"context"

	"github.com/giantswarm/oauth2-core/security"
)

// RateLimited throttles password attempts per username, whichever client
// or endpoint they arrive through. A successful authentication resets the
// username's budget. Throttled attempts are audited as rate_limit_exceeded;
// credential failures are left to the caller to audit.
type RateLimited struct {
	next    Authenticator
	limiter *security.RateLimiter
	auditor *security.Auditor
}

var _ Authenticator = (*RateLimited)(nil)

// NewRateLimited wraps next. auditor may be nil.
func NewRateLimited(next Authenticator, limiter *security.RateLimiter, auditor *security.Auditor) *RateLimited {
	return &RateLimited{next: next, limiter: limiter, auditor: auditor}
}

// Name returns the wrapped authenticator's name
func (r *RateLimited) Name() string {
	return r.next.Name()
}

// Authenticate delegates to the wrapped authenticator unless username is throttled
func (r *RateLimited) Authenticate(ctx context.Context, username, password string) (*UserInfo, error) {
	if !r.limiter.Allow(username) {
		r.auditor.LogRateLimitExceeded(ctx, username, "")
		return nil, ErrTooManyAttempts
	}

	user, err := r.next.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	r.limiter.Reset(username)
	return user, nil
}
