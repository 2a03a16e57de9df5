// Package config loads the factoryd configuration file.
//
// Both TOML and YAML are accepted, selected by file extension. Values not present
// in the file keep the defaults of Default. Example:
//
//	[factory]
//	account_id = "factory"
//	deploy_cost = "10000000000000000000000000"
//	contract_balance = "8000000000000000000000000"
//
//	[program]
//	source = "builtin"
//
//	[registry]
//	driver = "sqlite"
//	path = "/var/lib/collection-factory/registry.db"
//
//	[runtime.genesis]
//	factory = "100000000000000000000000000"
//	alice = "50000000000000000000000000"
//
//	[auth.tokens]
//	alice = "<hex sha256 of alice's bearer token>"
package config
