// Package storage provides content-addressed storage for program images and
// diagnostic records.
//
// Content is identified by the SHA-256 hash of its bytes and kept in one
// namespace per content type ("programs", "records"). Backends are created from
// location URIs by StorageBackendFactory:
//
//	file:///var/lib/collection-factory
//	s3://bucket/prefix?region=us-west-2
//	ipfs://localhost:5001/collection-factory
//	github://owner/repo/dir?ref=main
//	vault://vault.example.com:8200/secret/collection-factory
//
// Several locations are combined by MultiStorageBackend, which stores to every
// available backend and fetches from the first one holding verified content.
package storage
