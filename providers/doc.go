// Package providers defines how resource owner credentials are verified for
// the password grant, and how an end user is identified at the
// authorization endpoint.
//
// Implementations are provided in subpackages:
//   - providers/static: a fixed set of users with bcrypt password hashes
//   - providers/mock: function-field double for tests
//
// RateLimited wraps any Authenticator with per-username throttling.
//
// Example usage:
//
//	users, err := static.New(map[string]string{"alice": "$2a$10$..."})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	limiter := security.NewRateLimiter(0.2, 5, logger)
//	authn := providers.NewRateLimited(users, limiter, auditor)
package providers
