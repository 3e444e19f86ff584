package storage

import "context"

// BlobStore is the object-store capability. Objects are immutable once
// written; Upload returns a durable, fetchable URL.
type BlobStore interface {
	// EnsureContainer creates the backing container when absent; idempotent.
	EnsureContainer(ctx context.Context) error

	// Upload writes one named object and returns its URL.
	Upload(ctx context.Context, name string, data []byte) (string, error)
}
