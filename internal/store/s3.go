package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/urlutil"
)

// S3 user metadata keys carrying the object timestamps. minio-go strips
// the x-amz-meta- prefix and canonicalizes the rest on read.
const (
	s3MetaLastModified = "last-modified"
	s3MetaLastFetched  = "last-fetched"
)

// S3Store keeps objects in an S3-compatible bucket. Timestamps travel as
// x-amz-meta-* user metadata in ISO-8601 UTC. A zero-byte object counts
// as absent: some backends cannot delete, so empty objects are the
// convention for holes.
type S3Store struct {
	endpoint string
	bucket   string
	prefix   string
	secure   bool
	logger   zerolog.Logger
}

// NewS3Store creates a store for the given endpoint, bucket and key prefix.
func NewS3Store(endpoint, bucket, prefix string, secure bool, logger zerolog.Logger) *S3Store {
	return &S3Store{
		endpoint: endpoint,
		bucket:   bucket,
		prefix:   prefix,
		secure:   secure,
		logger:   logger.With().Str("component", "s3-store").Str("bucket", bucket).Logger(),
	}
}

// NewS3StoreFromURL builds a store from s3://host[:port]/bucket/prefix.
// The s3s scheme enables TLS.
func NewS3StoreFromURL(u *urlutil.URL, logger zerolog.Logger) (*S3Store, error) {
	parts := strings.Split(strings.Trim(u.Path(), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("missing bucket name in s3 URL")
	}
	bucket := parts[0]
	prefix := strings.Join(parts[1:], "/")
	return NewS3Store(u.Host(), bucket, prefix, u.Scheme() == "s3s", logger), nil
}

// client builds a fresh connection handle. Handles are per call: the
// store itself stays trivially safe to share and the SDK keeps its own
// transport underneath.
func (s *S3Store) client() (*minio.Client, error) {
	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvMinio{},
		&credentials.EnvAWS{},
		&credentials.Static{},
	})
	return minio.New(s.endpoint, &minio.Options{Creds: creds, Secure: s.secure})
}

func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func metaValue(meta map[string]string, key string) string {
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (s *S3Store) stat(ctx context.Context, client *minio.Client, name string) (Stat, error) {
	info, err := client.StatObject(ctx, s.bucket, s.key(name), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Stat{}, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return Stat{}, fmt.Errorf("s3 stat %q: %w", name, err)
	}

	if info.Size == 0 {
		return Stat{}, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}

	mtime := ParseTime(metaValue(info.UserMetadata, s3MetaLastModified), info.LastModified)
	ftime := ParseTime(metaValue(info.UserMetadata, s3MetaLastFetched), mtime)

	contentType := info.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	return Stat{
		ContentType:  contentType,
		LastModified: mtime,
		LastFetched:  ftime,
		TTL:          NeverExpires,
		Size:         info.Size,
	}, nil
}

// Stat implements ObjectStore.
func (s *S3Store) Stat(ctx context.Context, name string) (Stat, error) {
	client, err := s.client()
	if err != nil {
		return Stat{}, fmt.Errorf("s3 connect: %w", err)
	}
	return s.stat(ctx, client, name)
}

// Get implements ObjectStore.
func (s *S3Store) Get(ctx context.Context, name string) (Object, error) {
	client, err := s.client()
	if err != nil {
		return Object{}, fmt.Errorf("s3 connect: %w", err)
	}

	stat, err := s.stat(ctx, client, name)
	if err != nil {
		return Object{}, err
	}

	reader, err := client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Object{}, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return Object{}, fmt.Errorf("s3 get %q: %w", name, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Object{}, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return Object{}, fmt.Errorf("s3 read %q: %w", name, err)
	}

	s.logger.Debug().Str("name", name).Int("bytes", len(data)).Msg("s3 get")
	return WithData(stat, data), nil
}

// Put implements ObjectStore.
func (s *S3Store) Put(ctx context.Context, name string, obj Object) error {
	client, err := s.client()
	if err != nil {
		return fmt.Errorf("s3 connect: %w", err)
	}

	opts := minio.PutObjectOptions{
		ContentType: obj.ContentType,
		UserMetadata: map[string]string{
			s3MetaLastModified: FormatTime(obj.LastModified),
			s3MetaLastFetched:  FormatTime(obj.LastFetched),
		},
	}
	_, err = client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(obj.Data), obj.Size, opts)
	if err != nil {
		return fmt.Errorf("s3 put %q: %w", name, err)
	}

	s.logger.Debug().Str("name", name).Int64("bytes", obj.Size).Msg("s3 put")
	return nil
}
