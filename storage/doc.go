// Package storage provides the entity store contracts for the OAuth2 grant core.
//
// The storage package defines one interface per entity:
//   - ClientStore: registered OAuth clients
//   - AuthorizationCodeStore: single use authorization codes
//   - RefreshTokenStore / AccessTokenStore: issued tokens
//   - ScopeStore: the supported scope universe
//   - AuthorizationStore: scopes and grant types a resource owner approved for a client
//
// Store is the union of all of them.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-memory storage for development and testing
//   - storage/mock: function-field doubles for unit tests
//   - storage/valkey: Valkey/Redis-compatible distributed storage
//   - storage/sqlstore: SQLite or MySQL via database/sql
package storage
