// Package clients provides a Go client for the collection factory HTTP API.
package clients
