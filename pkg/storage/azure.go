package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBlobStore adapts one Azure Blob Storage container to BlobStore.
type AzureBlobStore struct {
	container string
	client    *azblob.Client
	log       *slog.Logger
}

// NewAzureBlobStore builds a blob adapter from a storage connection string.
func NewAzureBlobStore(connectionString, container string, log *slog.Logger) (*AzureBlobStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize blob client: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &AzureBlobStore{
		container: container,
		client:    client,
		log:       log.With("component", "storage.azure", "container", container),
	}, nil
}

func (s *AzureBlobStore) EnsureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %q: %w", s.container, err)
	}

	s.log.Debug("Blob container ready")
	return nil
}

func (s *AzureBlobStore) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if _, err := s.client.UploadBuffer(ctx, s.container, name, data, nil); err != nil {
		return "", fmt.Errorf("upload blob %q: %w", name, err)
	}

	return s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(name).URL(), nil
}
