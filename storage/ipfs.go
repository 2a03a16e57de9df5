package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/ruteri/collection-factory/interfaces"
)

const defaultIPFSRoot = "/collection-factory"

// IPFSBackend stores content in an IPFS node. Data is added to the node and linked
// into its mutable file system under "<root>/<namespace>/<hex content id>", which
// makes it retrievable by our content id while remaining pinned by the node.
type IPFSBackend struct {
	shell *shell.Shell
	addr  string
	root  string
	log   *slog.Logger
}

// NewIPFSBackend connects to the node API at addr (host:port).
func NewIPFSBackend(addr, root string, timeout time.Duration, log *slog.Logger) *IPFSBackend {
	if root == "" {
		root = defaultIPFSRoot
	}
	sh := shell.NewShell(addr)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSBackend{
		shell: sh,
		addr:  addr,
		root:  "/" + strings.Trim(root, "/"),
		log:   log,
	}
}

func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	mfsPath, err := b.mfsPath(id, contentType)
	if err != nil {
		return nil, err
	}

	reader, err := b.shell.FilesRead(ctx, mfsPath)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return nil, interfaces.ErrContentNotFound
		}
		b.log.Error("Failed to read from IPFS", slog.String("path", mfsPath), "err", err)
		return nil, fmt.Errorf("%w: %w", interfaces.ErrBackendUnavailable, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched content from IPFS", slog.String("path", mfsPath), slog.Int("size", len(data)))
	return data, nil
}

func (b *IPFSBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	mfsPath, err := b.mfsPath(id, contentType)
	if err != nil {
		return id, err
	}

	cid, err := b.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return id, fmt.Errorf("failed to add data to IPFS: %w", err)
	}

	err = b.shell.FilesWrite(ctx, mfsPath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return id, fmt.Errorf("failed to link %s into IPFS files: %w", cid, err)
	}

	b.log.Debug("Stored content in IPFS",
		slog.String("cid", cid),
		slog.String("path", mfsPath),
		slog.String("contentID", id.String()))
	return id, nil
}

func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

func (b *IPFSBackend) Name() string {
	return "ipfs-" + b.addr
}

func (b *IPFSBackend) LocationURI() string {
	return fmt.Sprintf("ipfs://%s%s", b.addr, b.root)
}

func (b *IPFSBackend) mfsPath(id interfaces.ContentID, contentType interfaces.ContentType) (string, error) {
	name, err := objectName(id, contentType)
	if err != nil {
		return "", err
	}
	return path.Join(b.root, name), nil
}
