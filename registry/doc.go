// Package registry implements the set of committed child accounts.
//
// The registry is the single source of truth for "does this child already
// exist". It is insert-only: a child id is added once its provisioning plan
// succeeded and is never removed. Inserting an id that is already present is
// a no-op.
//
// Two implementations are provided:
//
//   - MemoryRegistry: a mutex-guarded map, suitable for tests and ephemeral deployments
//   - SQLiteRegistry: a SQLite table managed with embedded golang-migrate migrations,
//     so committed children survive restarts of the factory
//
// MockRegistry is a testify mock for error injection in tests of dependent packages.
//
// The registry is owned by the factory orchestrator; no other component writes to it.
package registry
