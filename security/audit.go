package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/giantswarm/oauth2-core/instrumentation"
)

// Auditor handles security event logging with PII protection.
// A nil *Auditor is valid and discards every event.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	metrics *instrumentation.Metrics
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// SetMetrics counts every logged event in the audit events metric
func (a *Auditor) SetMetrics(m *instrumentation.Metrics) {
	if a != nil {
		a.metrics = m
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
	a.metrics.RecordAuditEvent(context.Background(), event.Type)
}

// LogAuthorizationCodeIssued logs a code issued by the authorization endpoint
func (a *Auditor) LogAuthorizationCodeIssued(ctx context.Context, userID, clientID string, scope []string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeIssued,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ClientIPFromContext(ctx),
		Details: map[string]any{
			"scope": strings.Join(scope, " "),
		},
	})
}

// LogAuthorizationCodeRedeemed logs a successful code redemption
func (a *Auditor) LogAuthorizationCodeRedeemed(ctx context.Context, userID, clientID string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeRedeemed,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ClientIPFromContext(ctx),
	})
}

// LogAuthorizationCodeReuse logs a redemption attempt that lost the race
// for an already redeemed code
func (a *Auditor) LogAuthorizationCodeReuse(ctx context.Context, userID, clientID string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeReuseDetected,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ClientIPFromContext(ctx),
	})
}

// LogTokenIssued logs when a token is issued
func (a *Auditor) LogTokenIssued(ctx context.Context, userID, clientID, grantType string, scope []string) {
	a.LogEvent(Event{
		Type:      EventTokenIssued,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ClientIPFromContext(ctx),
		Details: map[string]any{
			"grant_type": grantType,
			"scope":      strings.Join(scope, " "),
		},
	})
}

// LogTokenRefreshed logs when a refresh token is used
func (a *Auditor) LogTokenRefreshed(ctx context.Context, userID, clientID string, expiresAt time.Time) {
	a.LogEvent(Event{
		Type:      EventTokenRefreshed,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ClientIPFromContext(ctx),
		Details: map[string]any{
			"refresh_token_expires_at": expiresAt,
		},
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(ctx context.Context, userID, clientID, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ClientIPFromContext(ctx),
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogScopeEscalationAttempt logs a request for scopes beyond what was granted
func (a *Auditor) LogScopeEscalationAttempt(ctx context.Context, userID, clientID string, requested []string) {
	a.LogEvent(Event{
		Type:      EventScopeEscalationAttempt,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ClientIPFromContext(ctx),
		Details: map[string]any{
			"requested_scope": strings.Join(requested, " "),
		},
	})
}

// LogInvalidRedirect logs a redirect URI that was missing or did not match
func (a *Auditor) LogInvalidRedirect(ctx context.Context, clientID, reason string) {
	a.LogEvent(Event{
		Type:      EventInvalidRedirect,
		ClientID:  clientID,
		IPAddress: ClientIPFromContext(ctx),
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ctx context.Context, userID, clientID string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ClientIPFromContext(ctx),
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
