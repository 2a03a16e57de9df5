package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const ed25519Prefix = "ed25519:"

var ErrInvalidAccessKey = errors.New("invalid access key")

// ParseAccessKey decodes a public key in "ed25519:<base58>" form.
func ParseAccessKey(key string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(key, ed25519Prefix)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key type in %q", ErrInvalidAccessKey, key)
	}

	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessKey, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidAccessKey, len(raw))
	}
	return raw, nil
}

// FormatAccessKey encodes a raw ed25519 public key.
func FormatAccessKey(raw []byte) string {
	return ed25519Prefix + base58.Encode(raw)
}
