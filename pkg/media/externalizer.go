package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"wabridge/pkg/storage"
)

const defaultExtension = "bin"

// Externalizer uploads binary payloads to object storage and returns a
// fetchable URL in place of the bytes. There is no retry here; the caller
// decides whether a missing URL degrades or aborts.
type Externalizer struct {
	store storage.BlobStore
	log   *slog.Logger
}

// NewExternalizer constructs an externalizer over a blob store capability.
func NewExternalizer(store storage.BlobStore, log *slog.Logger) *Externalizer {
	if log == nil {
		log = slog.Default()
	}

	return &Externalizer{
		store: store,
		log:   log.With("component", "media.externalizer"),
	}
}

// Externalize writes one object named by a fresh UUID plus a MIME-derived
// extension and returns its durable URL. Each call writes a new object;
// names are never reused.
func (e *Externalizer) Externalize(ctx context.Context, data []byte, mime string) (string, error) {
	name := uuid.NewString() + "." + extensionFromMIME(mime)

	url, err := e.store.Upload(ctx, name, data)
	if err != nil {
		return "", fmt.Errorf("externalize media: %w", err)
	}

	e.log.Debug("Media uploaded", "blob", name, "mime", mime, "bytes", len(data))
	return url, nil
}

// extensionFromMIME derives a file extension from the MIME subtype,
// falling back to "bin" for absent or malformed types.
func extensionFromMIME(mime string) string {
	_, subtype, ok := strings.Cut(mime, "/")
	if !ok {
		return defaultExtension
	}

	// Strip any parameters or suffix noise ("png; charset=binary").
	subtype, _, _ = strings.Cut(subtype, ";")
	subtype = strings.TrimSpace(subtype)
	if subtype == "" {
		return defaultExtension
	}

	return subtype
}
