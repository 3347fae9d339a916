// Package security provides the security plumbing shared by the grant
// handlers and the HTTP boundary: audit logging, keyed rate limiting,
// expiry checks, client IP extraction and response hardening headers.
//
// # Audit logging
//
// Auditor writes "security_audit" records through slog. User identifiers are
// hashed before they are logged; client ids are logged verbatim. The caller's
// IP address travels on the context (WithClientIP) so that code without
// access to the HTTP request can still attribute events.
//
// # Rate limiting
//
// RateLimiter is a token bucket per key with LRU eviction, bounding memory
// under distributed guessing attacks:
//
//	limiter := security.NewRateLimiter(0.2, 5, logger) // 5 attempts, then one every 5s
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientID + ":" + username) {
//	    // reject
//	}
package security
