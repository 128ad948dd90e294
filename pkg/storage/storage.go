// Package storage makes document files available on the local filesystem,
// either from a directory or from Azure Blob Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/dukex/docflow/pkg/protocol"
)

var (
	ErrNotFound   = errors.New("document file not found")
	ErrEmptyKey   = errors.New("storage key is empty")
	ErrInvalidKey = errors.New("storage key is invalid")
)

var (
	_ protocol.FileFetcher = (*BlobFetcher)(nil)
	_ protocol.FileFetcher = (*LocalFetcher)(nil)
)

// BlobFetcher downloads blobs of one container into temporary files.
type BlobFetcher struct {
	client    *azblob.Client
	container string
	tempDir   string
	logger    *slog.Logger
}

// NewBlobFetcher creates a fetcher from an Azure storage connection string.
// Nothing is contacted until the first Fetch.
func NewBlobFetcher(connectionString, container string, logger *slog.Logger) (*BlobFetcher, error) {
	if container == "" {
		return nil, errors.New("storage container name is required")
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &BlobFetcher{
		client:    client,
		container: container,
		tempDir:   os.TempDir(),
		logger:    logger.With("module", "blob_fetcher", "container", container),
	}, nil
}

// EnsureContainer creates the container when it does not exist yet.
func (b *BlobFetcher) EnsureContainer(ctx context.Context) error {
	_, err := b.client.CreateContainer(ctx, b.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", b.container, err)
	}

	return nil
}

// Fetch downloads key into a temporary file. The cleanup removes it.
func (b *BlobFetcher) Fetch(ctx context.Context, key string) (string, func(), error) {
	err := validateKey(key)
	if err != nil {
		return "", nil, err
	}

	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return "", nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		return "", nil, fmt.Errorf("download blob %s: %w", key, err)
	}
	defer resp.Body.Close()

	path, cleanup, err := writeTemp(b.tempDir, filepath.Ext(key), resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("store blob %s: %w", key, err)
	}

	b.logger.DebugContext(ctx, "Fetched blob", "key", key, "path", path)

	return path, cleanup, nil
}

// LocalFetcher resolves keys relative to a root directory. Files are used in
// place, so the cleanup does nothing.
type LocalFetcher struct {
	root string
}

func NewLocalFetcher(root string) *LocalFetcher {
	return &LocalFetcher{root: root}
}

func (l *LocalFetcher) Fetch(_ context.Context, key string) (string, func(), error) {
	err := validateKey(key)
	if err != nil {
		return "", nil, err
	}

	path := filepath.Join(l.root, filepath.Clean(key))

	_, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		return "", nil, err
	}

	return path, func() {}, nil
}

func writeTemp(dir, ext string, body io.Reader) (string, func(), error) {
	file, err := os.CreateTemp(dir, "docflow-*"+ext)
	if err != nil {
		return "", nil, err
	}

	cleanup := func() { _ = os.Remove(file.Name()) }

	_, err = io.Copy(file, body)
	closeErr := file.Close()

	if err = errors.Join(err, closeErr); err != nil {
		cleanup()

		return "", nil, err
	}

	return file.Name(), cleanup, nil
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if strings.Contains(key, "..") {
		return ErrInvalidKey
	}

	return nil
}
