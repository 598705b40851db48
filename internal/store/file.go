package store

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/xattr"
	"github.com/rs/zerolog"
)

// Extended attribute keys, following the freedesktop.org convention of
// keeping file metadata under the user. namespace.
const (
	xattrMimeType     = "user.mime_type"
	xattrLastModified = "user.last_modified"
	xattrLastFetched  = "user.last_fetched"
)

// FileStore persists objects as plain files. The content type and both
// timestamps live in extended attributes; the file mtime mirrors
// last-modified so the blobs stay meaningful to tools that only look at
// the filesystem.
type FileStore struct {
	base   string
	logger zerolog.Logger
}

// NewFileStore creates a store rooted at the given base directory.
func NewFileStore(base string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		base:   base,
		logger: logger.With().Str("component", "file-store").Logger(),
	}
}

func (s *FileStore) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.base, name)
}

func getAttr(path, key string) string {
	value, err := xattr.Get(path, key)
	if err != nil {
		return ""
	}
	return string(value)
}

// guessContentType prefers the mime_type xattr and falls back to the file
// extension.
func guessContentType(path string) string {
	if value := getAttr(path, xattrMimeType); value != "" {
		return value
	}
	if value := mime.TypeByExtension(filepath.Ext(path)); value != "" {
		return value
	}
	return DefaultContentType
}

func (s *FileStore) statPath(path string) (Stat, error) {
	info, err := os.Stat(path)
	if err != nil {
		s.logger.Debug().Str("path", path).Msg("file stat miss")
		return Stat{}, fmt.Errorf("%w: %s", ErrObjectNotFound, path)
	}

	mtime := ParseTime(getAttr(path, xattrLastModified), info.ModTime())
	ftime := ParseTime(getAttr(path, xattrLastFetched), mtime)

	return Stat{
		ContentType:  guessContentType(path),
		LastModified: mtime,
		LastFetched:  ftime,
		TTL:          NeverExpires,
		Size:         info.Size(),
	}, nil
}

// Stat implements ObjectStore.
func (s *FileStore) Stat(ctx context.Context, name string) (Stat, error) {
	return s.statPath(s.path(name))
}

// Get implements ObjectStore.
func (s *FileStore) Get(ctx context.Context, name string) (Object, error) {
	path := s.path(name)
	stat, err := s.statPath(path)
	if err != nil {
		return Object{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("failed to read object file")
		return Object{}, fmt.Errorf("%w: %s", ErrObjectNotFound, path)
	}

	s.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("file get")
	return WithData(stat, data), nil
}

// Put implements ObjectStore. Write failures are errors; xattr failures
// are only logged, because a filesystem without xattr support can still
// hold the blob and the read path falls back to mtime and extension.
func (s *FileStore) Put(ctx context.Context, name string, obj Object) error {
	path := s.path(name)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := os.WriteFile(path, obj.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write object file: %w", err)
	}

	if err := os.Chtimes(path, time.Now(), obj.LastModified); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to set file mtime")
	}

	attrs := map[string]string{
		xattrMimeType:     obj.ContentType,
		xattrLastModified: FormatTime(obj.LastModified),
		xattrLastFetched:  FormatTime(obj.LastFetched),
	}
	for key, value := range attrs {
		if err := xattr.Set(path, key, []byte(value)); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Str("attr", key).Msg("failed to set xattr")
		}
	}

	s.logger.Debug().Str("path", path).Int64("bytes", obj.Size).Msg("file put")
	return nil
}

// SingleFileStore wraps a FileStore but ignores the requested name and
// always targets one fixed file. Used for stores whose whole content is a
// single document, like the anidb titles dump.
type SingleFileStore struct {
	inner *FileStore
	name  string
}

// NewSingleFileStore creates a store pinned to the given file path.
func NewSingleFileStore(path string, logger zerolog.Logger) *SingleFileStore {
	return &SingleFileStore{
		inner: NewFileStore(filepath.Dir(path), logger),
		name:  filepath.Base(path),
	}
}

func (s *SingleFileStore) Stat(ctx context.Context, name string) (Stat, error) {
	return s.inner.Stat(ctx, s.name)
}

func (s *SingleFileStore) Get(ctx context.Context, name string) (Object, error) {
	return s.inner.Get(ctx, s.name)
}

func (s *SingleFileStore) Put(ctx context.Context, name string, obj Object) error {
	return s.inner.Put(ctx, s.name, obj)
}

// NullStore discards writes and reports every read as absent.
type NullStore struct{}

func (NullStore) Stat(ctx context.Context, name string) (Stat, error) {
	return Stat{}, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
}

func (NullStore) Get(ctx context.Context, name string) (Object, error) {
	return Object{}, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
}

func (NullStore) Put(ctx context.Context, name string, obj Object) error {
	return nil
}

// ParseFileURL extracts the path from a file:// URL or returns a bare
// absolute path unchanged.
func ParseFileURL(raw string) (string, error) {
	if strings.HasPrefix(raw, "/") {
		return raw, nil
	}
	if !strings.HasPrefix(raw, "file://") {
		return "", fmt.Errorf("not a file:// URL: %q", raw)
	}
	path := strings.TrimPrefix(raw, "file://")
	if path == "" || !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("file:// URL must contain an absolute path: %q", raw)
	}
	return path, nil
}
