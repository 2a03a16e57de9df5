package interfaces

import (
	"context"
	"errors"
)

// ReceiptID identifies one dispatched provisioning plan.
type ReceiptID string

// FunctionCall is an entry point invocation with opaque, already serialized arguments.
type FunctionCall struct {
	Method string
	Args   []byte
}

// ProvisioningPlan is the composed unit handed to the hosting runtime:
// create the account, add the signer key, fund it, deploy the program and call its
// initializer. The runtime reports the outcome of all steps as one result.
type ProvisioningPlan struct {
	ReceiptID   ReceiptID
	Predecessor AccountID
	Account     AccountID
	AccessKey   string
	Deposit     Balance
	Code        []byte
	Init        FunctionCall

	// Callback is returned untouched in the ProvisioningResult.
	Callback FunctionCall
}

// ProvisioningResult is the single combined outcome of a plan.
type ProvisioningResult struct {
	ReceiptID ReceiptID
	Err       error
	Callback  FunctionCall
}

// Succeeded reports whether every step of the plan completed.
func (r ProvisioningResult) Succeeded() bool {
	return r.Err == nil
}

var (
	// ErrAccountExists is returned by a runtime when the target account is already taken.
	ErrAccountExists = errors.New("account already exists")

	// ErrAccountNotFound is returned when an account is unknown to the runtime or ledger.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrProgramFailed is returned when the child program's entry point rejects its arguments.
	ErrProgramFailed = errors.New("program execution failed")
)

// Provisioner is the hosting runtime's resource-provisioning facility.
//
// Provision either rejects the plan synchronously or accepts it. For an accepted plan the
// returned channel yields exactly one result and is then closed.
type Provisioner interface {
	Provision(ctx context.Context, plan ProvisioningPlan) (<-chan ProvisioningResult, error)
}

// Transferer moves funds between principals.
type Transferer interface {
	Transfer(ctx context.Context, from, to AccountID, amount Balance) error
}

// Registry is the set of committed child accounts.
type Registry interface {
	// Contains reports whether id was committed. It has no side effects.
	Contains(ctx context.Context, id AccountID) (bool, error)

	// Insert commits id. Inserting an existing id is a no-op.
	Insert(ctx context.Context, id AccountID) error

	// Len returns the number of committed ids.
	Len(ctx context.Context) (int, error)
}

// Codec serializes values crossing the asynchronous boundary.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ProgramHost executes an entry point of a deployed program image.
type ProgramHost interface {
	Invoke(ctx context.Context, code []byte, method string, args []byte) error
}
