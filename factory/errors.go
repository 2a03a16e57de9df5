package factory

import (
	"errors"
	"fmt"

	"github.com/ruteri/collection-factory/interfaces"
)

var (
	// ErrInsufficientDeposit is matched by *InsufficientDepositError.
	ErrInsufficientDeposit = errors.New("insufficient deposit")

	// ErrDuplicateChild is returned when the derived child id is already registered,
	// or, with strict reservation, already being provisioned.
	ErrDuplicateChild = errors.New("child already exists")

	// ErrDepositCollection is returned when the attached deposit could not be collected.
	ErrDepositCollection = errors.New("could not collect deposit")

	// ErrDispatchFailed is returned when the runtime rejected the provisioning plan.
	ErrDispatchFailed = errors.New("provisioning dispatch failed")

	// ErrStopped is returned once the orchestrator loop has exited.
	ErrStopped = errors.New("factory is not running")

	// ErrCorruptResult marks provisioning results whose callback context could not be decoded.
	ErrCorruptResult = errors.New("corrupt provisioning result")

	// ErrInvalidConfig is returned by New when the business parameters are inconsistent.
	ErrInvalidConfig = errors.New("invalid factory configuration")
)

// InsufficientDepositError reports the required and the attached amount.
type InsufficientDepositError struct {
	Required interfaces.Balance
	Attached interfaces.Balance
}

func (e *InsufficientDepositError) Error() string {
	return fmt.Sprintf("insufficient deposit: attached %s, required %s", e.Attached, e.Required)
}

func (e *InsufficientDepositError) Is(target error) bool {
	return target == ErrInsufficientDeposit
}
