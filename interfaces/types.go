package interfaces

import (
	"encoding/json"
	"errors"
)

// BasisPoint is a share unit where 10000 equals 100%.
type BasisPoint uint16

// MaxBasisPoints is 100% expressed in basis points.
const MaxBasisPoints BasisPoint = 10_000

// MetadataBlob is the collection metadata document handed to the child program.
// The factory never interprets it; schema validation belongs to the child program.
type MetadataBlob = json.RawMessage

// Royalties maps beneficiaries to basis-point shares plus an aggregate percentage.
type Royalties struct {
	Accounts map[AccountID]BasisPoint `json:"accounts"`
	Percent  BasisPoint               `json:"percent"`
}

// Sale holds the sale terms of a collection.
type Sale struct {
	Royalties *Royalties `json:"royalties"`
	Price     Balance    `json:"price"`
}

// InitArgs is the payload of the child program's initialization entry point.
type InitArgs struct {
	Metadata MetadataBlob `json:"metadata"`
	OwnerID  AccountID    `json:"owner_id"`
	Size     uint32       `json:"size"`
	Sale     Sale         `json:"sale"`
}

// ProvisioningRequest is a single, not persisted, request to create a child.
type ProvisioningRequest struct {
	// Name is the requested label; the child id is "<Name>.<factory account>".
	Name string

	// Metadata is passed to the child program unmodified.
	Metadata MetadataBlob

	// Supply is the collection size.
	Supply uint32

	// Sale carries price and royalty terms, passed through unmodified.
	Sale Sale

	// Predecessor is the requesting principal; it becomes the owner of the child.
	Predecessor AccountID

	// AttachedDeposit is the amount of funds attached to the request.
	AttachedDeposit Balance

	// SignerPublicKey is added as a full access key of the child account when set.
	SignerPublicKey string
}

var (
	// ErrInvalidRequest is returned for requests that are malformed before any business rule applies.
	ErrInvalidRequest = errors.New("invalid request")
)

// Validate checks the request shape. Business preconditions (deposit, uniqueness) are the factory's concern.
func (r *ProvisioningRequest) Validate() error {
	if err := r.Predecessor.Validate(); err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	if len(r.Metadata) == 0 {
		return errors.Join(ErrInvalidRequest, errors.New("missing metadata"))
	}
	return nil
}
