package interfaces

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrContentNotFound    = errors.New("content not found")
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI wraps every location parsing failure.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// ContentID addresses a program image or a diagnostic record by the SHA-256 of its bytes.
type ContentID [sha256.Size]byte

// ComputeID returns the content id of data.
func ComputeID(data []byte) ContentID {
	return sha256.Sum256(data)
}

// ParseContentID decodes a 64 character hex id, with or without a 0x prefix.
func ParseContentID(s string) (ContentID, error) {
	var id ContentID
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return id, fmt.Errorf("content id %q: %w", s, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("content id %q: want %d bytes, got %d", s, len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ContentID) Equal(other ContentID) bool {
	return id == other
}

// ContentType selects the namespace content is kept under.
type ContentType int

const (
	ProgramType ContentType = iota
	RecordType
)

func (ct ContentType) String() string {
	switch ct {
	case ProgramType:
		return "program"
	case RecordType:
		return "record"
	}
	return "unknown"
}

// StorageScheme is the URI scheme naming a backend kind.
type StorageScheme string

const (
	SchemeFile   StorageScheme = "file"
	SchemeS3     StorageScheme = "s3"
	SchemeIPFS   StorageScheme = "ipfs"
	SchemeGitHub StorageScheme = "github"
	SchemeVault  StorageScheme = "vault"
)

var knownSchemes = map[StorageScheme]struct{}{
	SchemeFile:   {},
	SchemeS3:     {},
	SchemeIPFS:   {},
	SchemeGitHub: {},
	SchemeVault:  {},
}

// StorageBackendLocation is a parsed backend URI such as
// s3://KEY:SECRET@bucket/prefix?region=eu-west-1.
type StorageBackendLocation struct {
	Raw    string
	Scheme StorageScheme
	Host   string
	Path   string
	Query  url.Values
	// Auth holds the userinfo part verbatim, e.g. "KEY:SECRET" or a vault token.
	Auth string
}

// ParseStorageLocation parses uri and rejects schemes no backend serves.
func ParseStorageLocation(uri string) (StorageBackendLocation, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %w", ErrInvalidLocationURI, err)
	}

	scheme := StorageScheme(u.Scheme)
	if _, ok := knownSchemes[scheme]; !ok {
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported scheme %q in %s", ErrInvalidLocationURI, u.Scheme, uri)
	}

	location := StorageBackendLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   u.Host,
		Path:   u.Path,
		Query:  u.Query(),
	}
	if u.User != nil {
		location.Auth = u.User.String()
	}
	return location, nil
}

func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// Param returns the named query parameter or "".
func (loc StorageBackendLocation) Param(name string) string {
	return loc.Query.Get(name)
}

// Flag reports whether the named query parameter parses as true.
func (loc StorageBackendLocation) Flag(name string) bool {
	on, err := strconv.ParseBool(loc.Query.Get(name))
	return err == nil && on
}

// StorageBackend stores and fetches content by its id.
type StorageBackend interface {
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)
	Available(ctx context.Context) bool
	Name() string
	LocationURI() string
}

// StorageBackendFactory turns parsed locations into backends.
type StorageBackendFactory interface {
	StorageBackendFor(location StorageBackendLocation) (StorageBackend, error)
	CreateMultiBackend(locations []StorageBackendLocation) (StorageBackend, error)
}
