// Package chain provides Local, an in-process hosting runtime that executes
// provisioning plans: create a sub-account, add an access key, fund it, deploy
// a program image and run its initializer, all or nothing.
package chain
