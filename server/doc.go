// Package server implements the OAuth 2.0 grant decision core.
//
// It turns token and authorization requests into issued tokens, issued
// authorization codes, or typed protocol errors (*Error). It never writes
// HTTP responses; rendering errors is left to the caller.
//
// Grant types and response types are handlers registered by identifier in a
// GrantTypeRegistry or ResponseTypeRegistry. The built-in handlers are:
//   - authorization_code: redeems single-use codes
//   - password: resource owner password credentials
//   - refresh_token: exchanges a refresh token, shortening its lifetime
//   - code (response type): issues authorization codes
//
// Handlers receive their collaborators through Dependencies: the entity
// store, a TokenIssuer, a providers.Authenticator, the clock, a logger,
// a security.Auditor and optional instrumentation.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, err := server.New(server.Dependencies{
//	    Store:         store,
//	    Issuer:        issuer.NewOpaque(store, issuer.Config{}),
//	    Authenticator: users,
//	    Config:        &server.Config{RedirectURIMatching: server.RedirectMatchExact},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	token, err := srv.Token(ctx, &server.TokenRequest{
//	    GrantType: "password",
//	    ClientID:  "my-client",
//	    Username:  "alice",
//	    Password:  "secret",
//	})
package server
