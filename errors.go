package oauth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/giantswarm/oauth2-core/security"
	"github.com/giantswarm/oauth2-core/server"
)

// WriteError renders err as an OAuth error response.
//
// Errors that carry a redirect URI are delivered to the client by a 302
// redirect with error, error_description and state in the query. All other
// errors are written as a JSON body with the status of their kind. Anything
// that is not a *server.Error is rendered as server_error.
//
// Client errors are logged at Warn, server errors at Error.
// It returns the status code written.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	oauthErr := server.AsError(err)
	status := oauthErr.Status()

	attrs := []any{
		"error", string(oauthErr.Kind),
		"error_description", oauthErr.Description,
		"status", status,
	}
	if cause := oauthErr.Unwrap(); cause != nil {
		attrs = append(attrs, "cause", cause.Error())
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "OAuth request failed", attrs...)
	} else {
		logger.WarnContext(r.Context(), "OAuth request rejected", attrs...)
	}

	if oauthErr.RedirectURI != "" {
		if location, ok := errorRedirectURL(oauthErr); ok {
			http.Redirect(w, r, location, http.StatusFound)
			return http.StatusFound
		}
		logger.WarnContext(r.Context(), "Cannot build error redirect, rendering JSON instead",
			"redirect_uri", oauthErr.RedirectURI)
	}

	writeJSONError(w, oauthErr)
	return status
}

func errorRedirectURL(e *server.Error) (string, bool) {
	params := url.Values{}
	params.Set("error", string(e.Kind))
	params.Set("error_description", e.Description)
	if e.State != "" {
		params.Set("state", e.State)
	}
	location, err := server.AppendQuery(e.RedirectURI, params)
	if err != nil {
		return "", false
	}
	return location, true
}

func writeJSONError(w http.ResponseWriter, e *server.Error) {
	security.SetSecurityHeaders(w)
	if e.Kind == server.KindInvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status())
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            string(e.Kind),
		ErrorDescription: e.Description,
	})
}
