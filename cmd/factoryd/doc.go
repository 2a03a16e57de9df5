// Package main (cmd/factoryd) runs the collection factory.
//
// It wires the configured registry, the in-process hosting runtime, the program image,
// diagnostics storage and refund settlement into a factory, and serves its HTTP API.
// Metrics are served on a separate listener.
//
// Example usage:
//
//	factoryd --config factory.toml --listen-addr 0.0.0.0:8080 --log-json
package main
