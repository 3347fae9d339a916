// Package issuer provides reference implementations of server.TokenIssuer.
//
// Opaque mints random bearer tokens and persists both the access and the
// refresh token. JWT mints RS256-signed access tokens that carry their own
// claims and persists only the refresh token.
//
// Both return an *oauth2.Token whose "scope" extra holds the granted scope.
package issuer
