// Package interfaces defines core interfaces and types for the collection factory,
// separating interface definitions from implementations.
//
// # Provisioning Interfaces
//
// Provisioner: The hosting runtime's provisioning facility. A ProvisioningPlan
// (create account, add key, fund, deploy, initialize) is executed as one unit and
// its outcome is delivered exactly once on the returned channel.
//
// Transferer: Moves funds between principals. Used to collect deposits and to pay
// compensating refunds.
//
// Registry: The insert-only set of committed child accounts.
//
// ProgramHost: Executes an entry point of a deployed program image.
//
// Codec: Serializes the initialization payload and the callback context.
//
// # Storage Interfaces
//
// StorageBackend: Provides content-addressed storage for program images and
// diagnostic records across multiple backend types (file, S3, IPFS, GitHub, Vault).
//
// StorageBackendFactory: Creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
//
// # Types
//
//   - AccountID: principal and child account names, "<name>.<factory>" for children
//   - Balance: 256-bit unsigned token amount, encoded as a decimal string
//   - Royalties, Sale, InitArgs: payload handed to the child program
//   - ContentID: 32-byte SHA-256 hash for content addressing
package interfaces
