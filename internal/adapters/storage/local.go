// internal/adapters/storage/local.go
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/core/ports"
)

// LocalStorage implements ports.AssetStore on the local filesystem. Files
// are served back by the API under baseURL.
type LocalStorage struct {
	basePath string
	refs     refMapper
	logger   *slog.Logger
}

var _ ports.AssetStore = (*LocalStorage)(nil)

// NewLocalStorage creates a new local storage client
func NewLocalStorage(basePath, baseURL string, logger *slog.Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
		refs:     refMapper{base: strings.TrimRight(baseURL, "/")},
		logger:   logger.With(slog.String("storage", "local")),
	}, nil
}

// Root returns the directory assets are written to.
func (l *LocalStorage) Root() string {
	return l.basePath
}

// Upload writes data under key and returns its URL.
func (l *LocalStorage) Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	full, err := l.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create asset directory: %w", err)
	}

	// Write to a temp file first so a partial upload never becomes visible.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: data})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("failed to store file: %w", err)
	}

	ref := l.refs.ref(cleanKey(key))
	l.logger.InfoContext(ctx, "asset stored",
		slog.String("key", key),
		slog.Int64("size", n),
		slog.String("content_type", contentType))

	return ref, nil
}

// Delete removes the file a reference points at.
func (l *LocalStorage) Delete(ctx context.Context, ref string) error {
	key, err := l.refs.key(ref)
	if err != nil {
		return err
	}

	full, err := l.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	l.logger.InfoContext(ctx, "asset deleted", slog.String("key", key))
	return nil
}

// List walks the storage directory.
func (l *LocalStorage) List(ctx context.Context) ([]domain.AssetObject, error) {
	objects := make([]domain.AssetObject, 0)

	err := filepath.WalkDir(l.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(l.basePath, p)
		if err != nil {
			return err
		}

		objects = append(objects, domain.AssetObject{
			Ref:          l.refs.ref(filepath.ToSlash(rel)),
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	return objects, nil
}

// resolve maps a key to a path under basePath, refusing anything that
// would escape it.
func (l *LocalStorage) resolve(key string) (string, error) {
	clean := cleanKey(key)
	if clean == "" {
		return "", fmt.Errorf("%w: empty object key", domain.ErrInvalidAsset)
	}

	full := filepath.Join(l.basePath, filepath.FromSlash(clean))
	rel, err := filepath.Rel(l.basePath, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: key %q escapes storage root", domain.ErrInvalidAsset, key)
	}
	return full, nil
}

// cleanKey normalizes a key to a slash separated path with no leading
// slash and no parent references.
func cleanKey(key string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(key, `\`, "/")), "/")
}

// URLPath returns the path component of the base URL, which is where the
// HTTP layer should mount the file server.
func (l *LocalStorage) URLPath() string {
	u, err := url.Parse(l.refs.base)
	if err != nil || u.Path == "" {
		return "/assets"
	}
	return u.Path
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
