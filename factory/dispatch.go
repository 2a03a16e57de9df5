package factory

import (
	"context"
	"time"

	"github.com/ruteri/collection-factory/interfaces"
)

// State is the position of a request in its lifecycle.
// Committed and Refunded are terminal.
type State int

const (
	StateValidated State = iota
	StateDispatched
	StateCommitted
	StateRefunded
)

func (s State) String() string {
	switch s {
	case StateValidated:
		return "validated"
	case StateDispatched:
		return "dispatched"
	case StateCommitted:
		return "committed"
	case StateRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of a dispatched request.
type Resolution struct {
	State State

	// Cause is the provisioning failure that led to a refund.
	Cause error

	// Refund is the amount sent back to the creator; zero when committed.
	Refund interfaces.Balance

	// RefundErr is set when the refund transfer failed. The loss is not retried.
	RefundErr error

	// CommitErr is set when the child could not be written to the registry.
	CommitErr error
}

// Dispatch is the handle of a request that passed validation and was handed to the runtime.
type Dispatch struct {
	ReceiptID interfaces.ReceiptID
	ChildID   interfaces.AccountID
	Creator   interfaces.AccountID
	Attached  interfaces.Balance

	dispatchedAt time.Time
	done         chan struct{}
	resolution   Resolution
}

func newDispatch(receipt interfaces.ReceiptID, child, creator interfaces.AccountID, attached interfaces.Balance) *Dispatch {
	return &Dispatch{
		ReceiptID:    receipt,
		ChildID:      child,
		Creator:      creator,
		Attached:     attached,
		dispatchedAt: time.Now(),
		done:         make(chan struct{}),
	}
}

// Done is closed once the request reached a terminal state.
func (d *Dispatch) Done() <-chan struct{} {
	return d.done
}

// State returns Dispatched until the callback resolved the request.
func (d *Dispatch) State() State {
	select {
	case <-d.done:
		return d.resolution.State
	default:
		return StateDispatched
	}
}

// Wait blocks until the request is resolved or ctx is done.
func (d *Dispatch) Wait(ctx context.Context) (Resolution, error) {
	select {
	case <-d.done:
		return d.resolution, nil
	case <-ctx.Done():
		return Resolution{State: StateDispatched}, ctx.Err()
	}
}

func (d *Dispatch) resolve(r Resolution) {
	d.resolution = r
	close(d.done)
}
