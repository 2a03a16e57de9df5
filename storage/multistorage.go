package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/collection-factory/interfaces"
)

// MultiStorageBackend fans writes out to every reachable backend and serves reads from
// the first one returning bytes that hash to the requested id.
type MultiStorageBackend struct {
	backends []interfaces.StorageBackend
	log      *slog.Logger
}

func NewMultiStorageBackend(backends []interfaces.StorageBackend, log *slog.Logger) *MultiStorageBackend {
	if log == nil {
		log = slog.Default()
	}
	return &MultiStorageBackend{backends: backends, log: log}
}

// reachable returns the backends reporting themselves available, in configured order.
func (m *MultiStorageBackend) reachable(ctx context.Context) []interfaces.StorageBackend {
	live := make([]interfaces.StorageBackend, 0, len(m.backends))
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			live = append(live, backend)
		} else {
			m.log.Debug("Skipping unreachable backend", slog.String("backend", backend.Name()))
		}
	}
	return live
}

func (m *MultiStorageBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	live := m.reachable(ctx)
	if len(live) == 0 {
		return nil, interfaces.ErrBackendUnavailable
	}

	began := time.Now()
	failures := make([]error, 0, len(live))
	for _, backend := range live {
		data, err := FetchVerified(ctx, backend, id, contentType)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", backend.Name(), err))
			continue
		}
		m.log.Debug("Fetched content",
			slog.String("backend", backend.Name()),
			slog.String("contentID", id.String()),
			slog.Duration("took", time.Since(began)))
		return data, nil
	}

	m.log.Warn("No backend could serve content", slog.String("contentID", id.String()), slog.Int("tried", len(failures)))
	return nil, fmt.Errorf("fetch %s %s: %w", contentType, id, errors.Join(failures...))
}

// Store succeeds when at least one backend kept the data.
func (m *MultiStorageBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	live := m.reachable(ctx)
	if len(live) == 0 {
		return interfaces.ContentID{}, interfaces.ErrBackendUnavailable
	}

	var failures []error
	for _, backend := range live {
		if _, err := backend.Store(ctx, data, contentType); err != nil {
			m.log.Warn("Backend rejected content", slog.String("backend", backend.Name()), "err", err)
			failures = append(failures, fmt.Errorf("%s: %w", backend.Name(), err))
		}
	}

	if len(failures) == len(live) {
		return interfaces.ContentID{}, fmt.Errorf("store %s: %w", contentType, errors.Join(failures...))
	}
	return interfaces.ComputeID(data), nil
}

func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

func (m *MultiStorageBackend) LocationURI() string {
	uris := make([]string, len(m.backends))
	for i, backend := range m.backends {
		uris[i] = backend.LocationURI()
	}
	return "multi:[" + strings.Join(uris, ",") + "]"
}
