// Package store implements the content-addressed object store abstraction:
// a common blob-with-metadata model, concrete filesystem, S3, HTTP and null
// backends, and a layered read-through cache combining them.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/urlutil"
)

var (
	// ErrObjectNotFound means the named object is absent, or transiently
	// unreachable with no stale copy available.
	ErrObjectNotFound = errors.New("object not found")

	// ErrWriteNotSupported means the store never accepts writes.
	ErrWriteNotSupported = errors.New("write not supported")
)

// DefaultContentType is used when a backend has no better information.
const DefaultContentType = "application/octet-stream"

// NeverExpires is the TTL for objects that stay valid forever.
const NeverExpires = time.Duration(-1)

// Stat carries an object's metadata without its bytes.
type Stat struct {
	ContentType  string
	LastModified time.Time
	LastFetched  time.Time
	// TTL is the object's time-to-live relative to LastFetched.
	// A negative TTL means the object never expires.
	TTL  time.Duration
	Size int64
}

// NewStat returns a Stat stamped with the current time and no expiry.
func NewStat(contentType string, size int64) Stat {
	now := time.Now()
	if contentType == "" {
		contentType = DefaultContentType
	}
	return Stat{
		ContentType:  contentType,
		LastModified: now,
		LastFetched:  now,
		TTL:          NeverExpires,
		Size:         size,
	}
}

// IsExpired reports whether the object is expired at now under the given
// TTL. A negative TTL never expires.
func (s Stat) IsExpired(ttl time.Duration, now time.Time) bool {
	if ttl < 0 {
		return false
	}
	return !now.Before(s.LastFetched.Add(ttl))
}

// Expired applies IsExpired with the object's own TTL.
func (s Stat) Expired(now time.Time) bool {
	return s.IsExpired(s.TTL, now)
}

// ExpiryTime returns the instant the object expires. ok is false when the
// object never expires.
func (s Stat) ExpiryTime() (expiry time.Time, ok bool) {
	if s.TTL < 0 {
		return time.Time{}, false
	}
	return s.LastFetched.Add(s.TTL), true
}

// Object is a Stat plus the blob bytes. Size always mirrors len(Data).
type Object struct {
	Stat
	Data []byte
}

// NewObject builds an Object stamped with the current time and no expiry.
func NewObject(contentType string, data []byte) Object {
	return Object{Stat: NewStat(contentType, int64(len(data))), Data: data}
}

// WithData attaches bytes to a Stat, fixing up the size.
func WithData(stat Stat, data []byte) Object {
	stat.Size = int64(len(data))
	return Object{Stat: stat, Data: data}
}

// ObjectStore is the stat/get/put contract shared by all backends. Names
// are opaque path-like strings. Stat and Get fail with ErrObjectNotFound
// when the name is absent; read-only stores fail Put with
// ErrWriteNotSupported.
type ObjectStore interface {
	Stat(ctx context.Context, name string) (Stat, error)
	Get(ctx context.Context, name string) (Object, error)
	Put(ctx context.Context, name string, obj Object) error
}

// FormatTime renders a timestamp the way stored metadata expects it:
// ISO-8601 in UTC.
func FormatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339)
}

// ParseTime parses an ISO-8601 timestamp, falling back to the given
// default when the value is empty or malformed.
func ParseTime(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fallback
	}
	return parsed
}

// FromURL builds an object store for a store-location URL:
// file:///abs/path or a bare absolute path, s3://host[:port]/bucket/prefix
// (s3s:// for TLS), or null://. HTTP upstreams are domain specific and are
// constructed by their owning packages, not here.
func FromURL(raw string, logger zerolog.Logger) (ObjectStore, error) {
	if strings.HasPrefix(raw, "/") {
		return NewFileStore(raw, logger), nil
	}

	parsed, err := urlutil.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid store URL %q: %w", raw, err)
	}

	switch parsed.Scheme() {
	case "file":
		return NewFileStore(parsed.Path(), logger), nil
	case "s3", "s3s":
		return NewS3StoreFromURL(parsed, logger)
	case "null":
		return NullStore{}, nil
	default:
		return nil, fmt.Errorf("unknown store URL scheme %q", parsed.Scheme())
	}
}
