package httpserver

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ruteri/collection-factory/interfaces"
)

// ErrUnauthenticated is returned when a request cannot prove it acts for its predecessor.
var ErrUnauthenticated = errors.New("predecessor not authenticated")

// Authenticator proves that a request acts on behalf of predecessor.
type Authenticator interface {
	Authenticate(r *http.Request, predecessor interfaces.AccountID) error
}

// TokenAuthenticator binds each predecessor account to a bearer token.
// Only the SHA-256 digest of every token is held.
type TokenAuthenticator struct {
	digests map[interfaces.AccountID][sha256.Size]byte
}

// NewTokenAuthenticator takes hex SHA-256 digests of the tokens, keyed by account.
func NewTokenAuthenticator(digests map[interfaces.AccountID]string) (*TokenAuthenticator, error) {
	a := &TokenAuthenticator{digests: make(map[interfaces.AccountID][sha256.Size]byte, len(digests))}
	for account, digest := range digests {
		raw, err := hex.DecodeString(digest)
		if err != nil || len(raw) != sha256.Size {
			return nil, fmt.Errorf("token digest of %s: want %d hex bytes", account, sha256.Size)
		}
		a.digests[account] = [sha256.Size]byte(raw)
	}
	return a, nil
}

// HashToken returns the hex digest NewTokenAuthenticator expects for token.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

func (a *TokenAuthenticator) Authenticate(r *http.Request, predecessor interfaces.AccountID) error {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	want, known := a.digests[predecessor]
	got := sha256.Sum256([]byte(token))
	if !known || subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
		return fmt.Errorf("%w: %s", ErrUnauthenticated, predecessor)
	}
	return nil
}
