package interfaces

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// MinAccountIDLen and MaxAccountIDLen bound the length of any account id.
	MinAccountIDLen = 2
	MaxAccountIDLen = 64
)

var (
	// ErrInvalidAccountID is returned when an account id does not follow the naming rules.
	ErrInvalidAccountID = errors.New("invalid account id")

	accountIDRegex   = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)
	labelRegex       = regexp.MustCompile(`^([a-z\d]+[\-_])*[a-z\d]+$`)
	ethImplicitRegex = regexp.MustCompile(`^0x[a-f\d]{40}$`)
)

// AccountID names a principal or a provisioned child account.
// Account ids are lowercase, dot-separated labels of alphanumerics joined by '-' or '_'.
type AccountID string

// NewAccountID validates the raw string and returns it as an AccountID.
func NewAccountID(raw string) (AccountID, error) {
	id := AccountID(raw)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks the length and character rules of the account id.
func (id AccountID) Validate() error {
	if len(id) < MinAccountIDLen || len(id) > MaxAccountIDLen {
		return fmt.Errorf("%w: %q must be between %d and %d characters", ErrInvalidAccountID, string(id), MinAccountIDLen, MaxAccountIDLen)
	}
	if !accountIDRegex.MatchString(string(id)) {
		return fmt.Errorf("%w: %q", ErrInvalidAccountID, string(id))
	}
	return nil
}

// String returns the account id as a string.
func (id AccountID) String() string {
	return string(id)
}

// IsDirectSubAccountOf reports whether id is exactly one label below parent.
func (id AccountID) IsDirectSubAccountOf(parent AccountID) bool {
	label, ok := strings.CutSuffix(string(id), "."+string(parent))
	return ok && label != "" && !strings.Contains(label, ".")
}

// IsEthImplicit reports whether the account id is an Ethereum-style implicit account (0x + 40 hex).
func (id AccountID) IsEthImplicit() bool {
	return ethImplicitRegex.MatchString(string(id))
}

// DeriveChildID builds the child account id "<name>.<factory>" for a requested name.
// The name is a single label, since only direct sub-accounts can be created; the
// composed id must satisfy the account id rules.
func DeriveChildID(name string, factory AccountID) (AccountID, error) {
	if !labelRegex.MatchString(name) {
		return "", fmt.Errorf("%w: child name %q must be a single label", ErrInvalidAccountID, name)
	}
	return NewAccountID(name + "." + string(factory))
}
