package api

import (
	"context"
	"encoding/json"

	"github.com/ruteri/collection-factory/factory"
	"github.com/ruteri/collection-factory/interfaces"
)

// Header constants used in creation requests.
const (
	// PredecessorHeader carries the account id of the requesting principal.
	PredecessorHeader = "X-Predecessor-Account-Id"

	// AttachedDepositHeader carries the attached deposit as a decimal string.
	AttachedDepositHeader = "X-Attached-Deposit"
)

// ChildFactory is the part of the factory exposed over HTTP.
type ChildFactory interface {
	AccountID() interfaces.AccountID
	RequestCreation(ctx context.Context, req interfaces.ProvisioningRequest) (*factory.Dispatch, error)
	CheckExists(ctx context.Context, id interfaces.AccountID) (bool, error)
}

// BalanceProvider reports account balances of the hosting runtime.
type BalanceProvider interface {
	Balance(ctx context.Context, id interfaces.AccountID) (interfaces.Balance, error)
}

// CreateChildRequest is the body of POST /api/v1/children.
type CreateChildRequest struct {
	Name            string          `json:"name"`
	Metadata        json.RawMessage `json:"metadata"`
	Size            uint32          `json:"size"`
	Sale            interfaces.Sale `json:"sale"`
	SignerPublicKey string          `json:"signer_public_key,omitempty"`
}

// CreateChildResponse describes an accepted request. State, Refund and Error are
// final only when the request was made with ?wait=true.
type CreateChildResponse struct {
	ReceiptID interfaces.ReceiptID `json:"receipt_id"`
	ChildID   interfaces.AccountID `json:"child_id"`
	State     string               `json:"state"`
	Refund    *interfaces.Balance  `json:"refund,omitempty"`
	Error     string               `json:"error,omitempty"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

type BalanceResponse struct {
	AccountID interfaces.AccountID `json:"account_id"`
	Balance   interfaces.Balance   `json:"balance"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
