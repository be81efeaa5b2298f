package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"docsign/internal/transport"
)

const (
	contentTypePDF = "application/pdf"
	maxArtifact    = 64 << 20
)

// ErrNotFound indicates no artifact is stored under the key.
var ErrNotFound = errors.New("artifact not found")

// Store archives fetched PDFs.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// Location returns where a stored artifact can be opened: a file path or
	// a pre-signed URL.
	Location(ctx context.Context, key string) (string, error)
}

// Kind selects the original or signed rendition of a document.
type Kind string

const (
	KindOriginal Kind = "original"
	KindSigned   Kind = "signed"
)

// Key returns the storage key of a document artifact.
func Key(id int64, kind Kind) string {
	return path.Join("documents", strconv.FormatInt(id, 10), string(kind)+".pdf")
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	cleaned := path.Clean("/" + key)[1:]
	if key == "" || cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return cleaned, nil
}

// Archive reads blob, validates it as a PDF and writes it to store under key.
// The blob is closed.
func Archive(ctx context.Context, store Store, key string, blob *transport.Blob) (Info, error) {
	defer blob.Close()
	data, err := io.ReadAll(io.LimitReader(blob.Body, maxArtifact+1))
	if err != nil {
		return Info{}, fmt.Errorf("read artifact: %w", err)
	}
	if len(data) > maxArtifact {
		return Info{}, fmt.Errorf("artifact exceeds %d bytes", maxArtifact)
	}
	info, err := Inspect(data)
	if err != nil {
		return Info{}, err
	}
	if err := store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentTypePDF); err != nil {
		return Info{}, err
	}
	return info, nil
}

// Load reads the artifact stored under key and validates it. An entry that is
// no longer a readable PDF is deleted and reported as ErrNotFound.
func Load(ctx context.Context, store Store, key string) (Info, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return Info{}, err
	}
	data, err := io.ReadAll(io.LimitReader(rc, maxArtifact+1))
	rc.Close()
	if err != nil {
		return Info{}, fmt.Errorf("read artifact: %w", err)
	}
	info, err := Inspect(data)
	if err == nil && len(data) <= maxArtifact {
		return info, nil
	}
	if derr := store.Delete(ctx, key); derr != nil {
		return Info{}, fmt.Errorf("delete stale artifact: %w", derr)
	}
	return Info{}, ErrNotFound
}
