// Package factory implements the provisioning workflow of the collection factory.
//
// A request is validated (deposit at least DeployCost, derived child id not yet
// registered), then a single provisioning plan is dispatched to the hosting
// runtime: create "<name>.<factory>", fund it with ContractBalance, deploy the
// program image and call its initializer. The runtime reports one combined
// outcome. On success the child id is committed to the registry; on failure the
// creator is refunded the attached deposit minus ContractBalance and a
// diagnostic record is written.
//
// Per request the lifecycle is Validated, Dispatched, then Committed or
// Refunded. The registry is only written by the factory's loop.
//
// Two requests for the same name that are both dispatched before either
// resolves will both consume their reservation; the registry still ends up
// with a single entry. Config.StrictReservation rejects the second request
// instead.
package factory
