package server

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth2-core/storage"
)

// dummySecretHash is compared against when the client does not exist so
// that unknown and known clients take the same time to reject.
// bcrypt hash of "test" at cost 10.
const dummySecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// AuthenticateClient verifies a client's credentials for the token endpoint.
// Clients registered without a secret hash are public and authenticate by
// client_id alone. Failures are invalid_client.
func (s *Server) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (*storage.Client, error) {
	if clientID == "" || !ValidVSChars(clientID) {
		return nil, ErrInvalidClient(DescClientAuthFailed)
	}

	client, err := s.deps.Store.GetClient(ctx, clientID)

	hash := dummySecretHash
	public := false
	if err == nil {
		if client.ClientSecretHash == "" {
			public = true
		} else {
			hash = client.ClientSecretHash
		}
	}

	// always compare, even for unknown or public clients
	bcryptErr := bcrypt.CompareHashAndPassword([]byte(hash), []byte(clientSecret))

	switch {
	case errors.Is(err, storage.ErrClientNotFound):
		s.deps.Auditor.LogAuthFailure(ctx, "", clientID, "unknown_client")
		return nil, ErrInvalidClient(DescClientAuthFailed)
	case err != nil:
		return nil, s.deps.internalError(ctx, "failed to load client", err)
	case public:
		return client, nil
	case bcryptErr != nil:
		s.deps.Auditor.LogAuthFailure(ctx, "", clientID, "invalid_client_secret")
		return nil, ErrInvalidClient(DescClientAuthFailed)
	}
	return client, nil
}
