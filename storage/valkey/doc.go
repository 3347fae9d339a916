// Package valkey provides a Valkey storage backend implementing storage.Store.
//
// Valkey is wire-compatible with Redis, so the backend also runs against Redis
// servers and, in tests, against miniredis.
//
// # Key Schema
//
// All keys use a configurable prefix (default "oauth2:"):
//
//	{prefix}client:{clientID}            -> JSON(Client)
//	{prefix}code:{code}                  -> JSON(AuthorizationCode) (with TTL)
//	{prefix}refresh:{token}              -> JSON(RefreshToken) (with TTL)
//	{prefix}access:{token}               -> JSON(AccessToken) (with TTL)
//	{prefix}scopes                       -> SET of scope names
//	{prefix}scope:{scope}                -> JSON(Scope)
//	{prefix}authz:{clientID}:{username}  -> JSON(Authorization)
//
// Codes and tokens keep their keys for ExpiredRetention past expiry so an
// expired grant is reported as expired rather than unknown.
//
// # Atomic Operations
//
// DeleteAuthorizationCode relies on DEL returning the number of removed keys:
// when several requests redeem the same code only one sees a count of 1.
// UpdateRefreshTokenExpiry writes through a Lua script that refuses to
// recreate a token deleted since it was read.
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "localhost:6379",
//	    KeyPrefix: "oauth2:",
//	})
package valkey
