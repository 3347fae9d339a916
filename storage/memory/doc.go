// Package memory provides an in-memory implementation of storage.Store.
//
// Entries live in maps guarded by a sync.RWMutex. A background goroutine
// removes codes and tokens that expired more than an hour ago, so grant
// handlers can still tell an expired grant from an unknown one.
//
// It is suitable for development, tests and single-instance deployments.
// Use storage/valkey or storage/sqlstore when state must survive restarts
// or be shared between replicas.
//
//	store := memory.New()
//	defer store.Stop()
package memory
