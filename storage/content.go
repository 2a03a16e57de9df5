package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ruteri/collection-factory/interfaces"
)

// ErrContentMismatch is returned when fetched data does not hash to the requested content id.
var ErrContentMismatch = errors.New("content hash mismatch")

// namespace is the per-type directory, key prefix or path segment used by every backend.
func namespace(contentType interfaces.ContentType) (string, error) {
	switch contentType {
	case interfaces.ProgramType:
		return "programs", nil
	case interfaces.RecordType:
		return "records", nil
	default:
		return "", fmt.Errorf("unsupported content type: %v", contentType)
	}
}

// objectName returns "<namespace>/<hex content id>".
func objectName(id interfaces.ContentID, contentType interfaces.ContentType) (string, error) {
	ns, err := namespace(contentType)
	if err != nil {
		return "", err
	}
	return ns + "/" + id.String(), nil
}

// Verify checks that data is the content identified by id.
func Verify(id interfaces.ContentID, data []byte) error {
	if actual := interfaces.ComputeID(data); !actual.Equal(id) {
		return fmt.Errorf("%w: expected %s, got %s", ErrContentMismatch, id, actual)
	}
	return nil
}

// FetchVerified fetches content and rejects it unless it hashes to id.
func FetchVerified(ctx context.Context, backend interfaces.StorageBackend, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	data, err := backend.Fetch(ctx, id, contentType)
	if err != nil {
		return nil, err
	}
	if err := Verify(id, data); err != nil {
		return nil, err
	}
	return data, nil
}
