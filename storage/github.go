package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/collection-factory/interfaces"
)

const defaultGitHubRawURL = "https://raw.githubusercontent.com"

// GitHubBackend is a read-only backend serving content committed to a repository
// as "<path>/<namespace>/<hex content id>" at a fixed ref.
// Fetched content is verified against its id since the repository is not content addressed.
type GitHubBackend struct {
	owner   string
	repo    string
	ref     string
	dir     string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewGitHubBackend(owner, repo, ref, dir string, log *slog.Logger) *GitHubBackend {
	if ref == "" {
		ref = "main"
	}
	return &GitHubBackend{
		owner:   owner,
		repo:    repo,
		ref:     ref,
		dir:     strings.Trim(dir, "/"),
		baseURL: defaultGitHubRawURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

func (b *GitHubBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	url, err := b.contentURL(id, contentType)
	if err != nil {
		return nil, err
	}

	data, status, err := b.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrBackendUnavailable, err)
	}
	switch {
	case status == http.StatusNotFound:
		return nil, interfaces.ErrContentNotFound
	case status != http.StatusOK:
		return nil, fmt.Errorf("%w: GitHub returned %d for %s", interfaces.ErrBackendUnavailable, status, url)
	}

	if err := Verify(id, data); err != nil {
		b.log.Warn("Content hash mismatch", slog.String("url", url), "err", err)
		return nil, err
	}

	b.log.Debug("Fetched content from GitHub", slog.String("url", url), slog.Int("size", len(data)))
	return data, nil
}

// Store always fails: the backend is read-only.
func (b *GitHubBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	return interfaces.ComputeID(data), fmt.Errorf("GitHub backend is read-only")
}

// Available reports whether the configured ref can be served.
func (b *GitHubBackend) Available(ctx context.Context) bool {
	_, status, err := b.get(ctx, b.repoURL())
	if err != nil {
		b.log.Debug("GitHub backend unavailable", "err", err)
		return false
	}
	// the ref root is not a file; any response other than a server error means the host answers
	return status < http.StatusInternalServerError
}

func (b *GitHubBackend) Name() string {
	return fmt.Sprintf("github-%s-%s", b.owner, b.repo)
}

func (b *GitHubBackend) LocationURI() string {
	uri := fmt.Sprintf("github://%s/%s", b.owner, b.repo)
	if b.dir != "" {
		uri += "/" + b.dir
	}
	return uri + "?ref=" + b.ref
}

func (b *GitHubBackend) repoURL() string {
	return fmt.Sprintf("%s/%s/%s/%s", b.baseURL, b.owner, b.repo, b.ref)
}

func (b *GitHubBackend) contentURL(id interfaces.ContentID, contentType interfaces.ContentType) (string, error) {
	name, err := objectName(id, contentType)
	if err != nil {
		return "", err
	}
	if b.dir != "" {
		name = b.dir + "/" + name
	}
	return b.repoURL() + "/" + name, nil
}

func (b *GitHubBackend) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return data, resp.StatusCode, nil
}
