package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth2-core/instrumentation"
	"github.com/giantswarm/oauth2-core/providers"
	"github.com/giantswarm/oauth2-core/security"
	"github.com/giantswarm/oauth2-core/server"
)

const tokenTypeBearer = "Bearer"

// ErrLoginRequired is returned by a SubjectFunc when the request carries no
// authenticated end user. The handler answers with a Basic challenge.
var ErrLoginRequired = errors.New("end user authentication required")

// SubjectFunc resolves the authenticated end user of an authorization request.
type SubjectFunc func(r *http.Request) (string, error)

// BasicAuthSubject returns a SubjectFunc that authenticates the end user
// with HTTP Basic credentials checked against authenticator. Pass
// Server.Authenticator so that logins share the password grant's rate limit.
// Rejected credentials yield an error matching both ErrLoginRequired and
// the authenticator's error.
func BasicAuthSubject(authenticator providers.Authenticator) SubjectFunc {
	return func(r *http.Request) (string, error) {
		username, password, ok := r.BasicAuth()
		if !ok || username == "" {
			return "", ErrLoginRequired
		}
		user, err := authenticator.Authenticate(r.Context(), username, password)
		if errors.Is(err, providers.ErrInvalidCredentials) {
			return "", fmt.Errorf("%w: %w", ErrLoginRequired, err)
		}
		if err != nil {
			return "", err
		}
		return user.Username, nil
	}
}

// Handler is a thin HTTP adapter for the OAuth Server.
// It parses requests, delegates to the Server and renders the result.
type Handler struct {
	server  *Server
	logger  *slog.Logger
	subject SubjectFunc
	tracer  trace.Tracer
}

// NewHandler creates a new HTTP handler. subject resolves the end user at
// the authorization endpoint; without it every authorization request is
// answered with a login challenge.
func NewHandler(srv *Server, subject SubjectFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = srv.Config.Logger
	}

	h := &Handler{
		server:  srv,
		logger:  logger,
		subject: subject,
		tracer:  tracenoop.NewTracerProvider().Tracer(""),
	}
	if srv.Config.Instrumentation != nil {
		h.tracer = srv.Config.Instrumentation.Tracer("http")
	}
	return h
}

// ServeToken handles the token endpoint (RFC 6749 Section 3.2).
// Parameters are read from the form encoded request body only.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "oauth.http.token")
	defer span.End()
	r = r.WithContext(h.withClientIP(ctx, r))

	status := h.serveToken(w, r)

	instrumentation.AddHTTPAttributes(span, r.Method, "token", status)
	h.recordHTTPMetrics(r.Context(), "token", r.Method, status, startTime)
}

func (h *Handler) serveToken(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return http.StatusMethodNotAllowed
	}

	if err := r.ParseForm(); err != nil {
		return WriteError(w, r, server.ErrInvalidRequest(server.DescInvalidParameter), h.logger)
	}
	form := r.PostForm

	clientID, clientSecret, err := clientCredentials(r)
	if err != nil {
		return WriteError(w, r, err, h.logger)
	}

	client, err := h.server.AuthenticateClient(r.Context(), clientID, clientSecret)
	if err != nil {
		return WriteError(w, r, err, h.logger)
	}

	token, err := h.server.Token(r.Context(), &server.TokenRequest{
		GrantType:    form.Get("grant_type"),
		ClientID:     client.ClientID,
		Code:         form.Get("code"),
		RedirectURI:  form.Get("redirect_uri"),
		Username:     form.Get("username"),
		Password:     form.Get("password"),
		RefreshToken: form.Get("refresh_token"),
		Scope:        form.Get("scope"),
	})
	if err != nil {
		return WriteError(w, r, err, h.logger)
	}

	h.writeTokenResponse(w, token)
	return http.StatusOK
}

// clientCredentials extracts the client credentials from the Authorization
// header or, failing that, from the client_id and client_secret body
// parameters. Using both methods at once is rejected (RFC 6749 Section 2.3).
func clientCredentials(r *http.Request) (clientID, clientSecret string, err error) {
	formID := r.PostForm.Get("client_id")
	formSecret := r.PostForm.Get("client_secret")

	basicID, basicSecret, ok := r.BasicAuth()
	if !ok {
		return formID, formSecret, nil
	}
	if formSecret != "" {
		return "", "", server.ErrInvalidRequest(server.DescInvalidParameter)
	}
	if formID != "" && formID != basicID {
		return "", "", server.ErrInvalidClient(server.DescClientAuthFailed)
	}
	return basicID, basicSecret, nil
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, token *oauth2.Token) {
	security.SetSecurityHeaders(w)

	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = tokenTypeBearer
	}

	expiresIn := token.ExpiresIn
	if expiresIn == 0 && !token.Expiry.IsZero() {
		expiresIn = int64(time.Until(token.Expiry).Seconds())
	}

	response := TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    tokenType,
		ExpiresIn:    expiresIn,
		RefreshToken: token.RefreshToken,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		response.Scope = scope
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// ServeAuthorization handles the authorization endpoint (RFC 6749 Section 3.1).
// On success the user agent is redirected to the client with a code.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "oauth.http.authorization")
	defer span.End()
	r = r.WithContext(h.withClientIP(ctx, r))

	status := h.serveAuthorization(w, r)

	instrumentation.AddHTTPAttributes(span, r.Method, "authorization", status)
	h.recordHTTPMetrics(r.Context(), "authorization", r.Method, status, startTime)
}

func (h *Handler) serveAuthorization(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return http.StatusMethodNotAllowed
	}

	username, err := h.resolveSubject(r)
	if errors.Is(err, ErrLoginRequired) {
		h.auditLoginFailure(r, err)
		security.SetNoStoreHeaders(w)
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2"`)
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return http.StatusUnauthorized
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to resolve end user", "error", err)
		return WriteError(w, r, server.ErrServerError(err), h.logger)
	}

	q := r.URL.Query()
	resp, err := h.server.Authorize(r.Context(), &server.AuthorizeRequest{
		ResponseType: q.Get("response_type"),
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		State:        q.Get("state"),
		Scope:        q.Get("scope"),
		Username:     username,
	})
	if err != nil {
		return WriteError(w, r, err, h.logger)
	}

	security.SetNoStoreHeaders(w)
	http.Redirect(w, r, resp.RedirectURL, http.StatusFound)
	return http.StatusFound
}

// auditLoginFailure records rejected end-user credentials. Throttled
// attempts are audited by the rate limiter instead.
func (h *Handler) auditLoginFailure(r *http.Request, err error) {
	if !errors.Is(err, providers.ErrInvalidCredentials) || errors.Is(err, providers.ErrTooManyAttempts) {
		return
	}
	username, _, _ := r.BasicAuth()
	h.server.Auditor.LogAuthFailure(r.Context(), username, r.URL.Query().Get("client_id"), "invalid_end_user_credentials")
}

func (h *Handler) resolveSubject(r *http.Request) (string, error) {
	if h.subject == nil {
		return "", ErrLoginRequired
	}
	return h.subject(r)
}

// withClientIP stores the caller's IP on ctx for audit events
func (h *Handler) withClientIP(ctx context.Context, r *http.Request) context.Context {
	ip := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
	return security.WithClientIP(ctx, ip)
}

func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	duration := float64(time.Since(startTime).Microseconds()) / 1000
	h.server.metrics.RecordHTTPRequest(ctx, method, endpoint, status, duration)
}
