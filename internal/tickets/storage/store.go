package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"ms-fulfillment/internal/config"
)

var (
	ErrNotFound   = errors.New("artifact not found")
	ErrInvalidKey = errors.New("invalid artifact key")
	ErrExists     = errors.New("artifact already exists")
)

// ArtifactStore persists rendered artifact images. The returned ref is opaque
// to callers and is what Get accepts.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// New builds the store selected by ARTIFACT_STORE.
func New(ctx context.Context, cfg config.ArtifactConfig) (ArtifactStore, error) {
	switch cfg.Store {
	case "", "local":
		return NewLocalStore(cfg.LocalDir)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown artifact store %q", cfg.Store)
	}
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}
