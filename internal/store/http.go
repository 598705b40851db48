package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/throttle"
)

// HTTPStoreConfig holds the shared knobs of an HTTP-backed store.
type HTTPStoreConfig struct {
	// UserAgent is sent with every request when non-empty.
	UserAgent string
	// ReqInterval is the minimum pause between any two upstream requests.
	// Zero or negative disables pacing.
	ReqInterval time.Duration
	// ErrInterval is the backoff window after an upstream error. While it
	// is open, calls fail immediately without contacting the upstream.
	ErrInterval time.Duration
	// Timeout bounds a single HTTP exchange. Defaults to 30s.
	Timeout time.Duration
}

// HTTPStore is a read-only object store over an upstream HTTP API.
// Concrete upstreams configure it through the hook fields instead of
// subclassing: MakeURL is mandatory, the rest are optional.
//
// One error never comes alone: after any upstream failure other than a
// plain 404 the error throttler opens a backoff window during which every
// call fails fast with ErrObjectNotFound. The layered cache in front then
// falls back to archived copies instead of hammering a broken upstream.
type HTTPStore struct {
	// MakeURL maps an object name to the upstream URL. stat is true for
	// metadata-only requests.
	MakeURL func(name string, stat bool) (string, error)

	// MakeHeaders returns extra request headers for the given name.
	MakeHeaders func(name string, stat bool) http.Header

	// TransformBody rewrites the response body before it is persisted,
	// e.g. decompressing a gzip file download.
	TransformBody func(name string, data []byte) ([]byte, error)

	// CheckBody inspects a 2xx response body for application-level errors
	// hidden behind HTTP 200, e.g. anidb's <error> documents.
	CheckBody func(name string, data []byte) error

	// StatContentType, when non-empty, short-circuits Stat: the store
	// reports a fresh object of this type without an upstream round trip.
	// Used by APIs whose responses are composed and thus have no
	// meaningful upstream HEAD.
	StatContentType string

	client      *http.Client
	userAgent   string
	reqThrottle *throttle.Throttler
	errThrottle *throttle.Throttler
	logger      zerolog.Logger
}

// NewHTTPStore creates the base store; callers assign the hook fields
// before first use.
func NewHTTPStore(cfg HTTPStoreConfig, logger zerolog.Logger) *HTTPStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStore{
		client:      &http.Client{Timeout: timeout},
		userAgent:   cfg.UserAgent,
		reqThrottle: throttle.New(cfg.ReqInterval),
		errThrottle: throttle.New(cfg.ErrInterval),
		logger:      logger.With().Str("component", "http-store").Logger(),
	}
}

// MarkError opens the error-backoff window, as after an upstream failure.
// Exposed for CheckBody hooks that detect failures inside 2xx responses.
func (s *HTTPStore) MarkError() {
	s.errThrottle.Mark()
}

// InBackoff reports whether the error-backoff window is currently open.
func (s *HTTPStore) InBackoff() bool {
	return !s.errThrottle.Check()
}

// Do performs one throttled upstream exchange and returns the response
// with its fully read body. The response body is always drained and
// closed here, never by the caller.
func (s *HTTPStore) Do(ctx context.Context, verb, url string, headers http.Header) (*http.Response, []byte, error) {
	if !s.errThrottle.Check() {
		return nil, nil, fmt.Errorf("%w: too many requests after last error", ErrObjectNotFound)
	}

	if err := s.reqThrottle.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, verb, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad request for %q: %v", ErrObjectNotFound, url, err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		s.errThrottle.Mark()
		s.logger.Warn().Err(err).Str("url", url).Msg("upstream request failed")
		return nil, nil, fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		s.errThrottle.Mark()
		return nil, nil, fmt.Errorf("%w: reading response: %v", ErrObjectNotFound, readErr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// recovered from the error, or no error ever happened
		s.errThrottle.Reset()
		return resp, body, nil
	}

	// a 404 is a normal answer, everything else counts as an upstream error
	if resp.StatusCode != http.StatusNotFound {
		s.errThrottle.Mark()
		s.logger.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("unexpected upstream status")
		return nil, nil, fmt.Errorf("%w: unexpected HTTP %d", ErrObjectNotFound, resp.StatusCode)
	}

	s.logger.Debug().Str("url", url).Msg("upstream 404")
	return nil, nil, fmt.Errorf("%w: HTTP 404", ErrObjectNotFound)
}

// parseLastModified reads the Last-Modified response header. Absent or
// unparseable values fall back to now.
func parseLastModified(resp *http.Response, logger zerolog.Logger) time.Time {
	value := resp.Header.Get("Last-Modified")
	if value == "" {
		return time.Now()
	}
	parsed, err := http.ParseTime(value)
	if err != nil {
		logger.Warn().Str("value", value).Msg("unparseable Last-Modified header")
		return time.Now()
	}
	return parsed
}

func (s *HTTPStore) headers(name string, stat bool) http.Header {
	if s.MakeHeaders == nil {
		return nil
	}
	return s.MakeHeaders(name, stat)
}

// Stat implements ObjectStore via an upstream HEAD, unless
// StatContentType short-circuits it.
func (s *HTTPStore) Stat(ctx context.Context, name string) (Stat, error) {
	if s.StatContentType != "" {
		return NewStat(s.StatContentType, 0), nil
	}

	url, err := s.MakeURL(name, true)
	if err != nil {
		return Stat{}, err
	}

	resp, _, err := s.Do(ctx, http.MethodHead, url, s.headers(name, true))
	if err != nil {
		return Stat{}, err
	}

	stat := NewStat(resp.Header.Get("Content-Type"), resp.ContentLength)
	if stat.Size < 0 {
		stat.Size = 0
	}
	stat.LastModified = parseLastModified(resp, s.logger)
	return stat, nil
}

// Get implements ObjectStore.
func (s *HTTPStore) Get(ctx context.Context, name string) (Object, error) {
	url, err := s.MakeURL(name, false)
	if err != nil {
		return Object{}, err
	}

	resp, body, err := s.Do(ctx, http.MethodGet, url, s.headers(name, false))
	if err != nil {
		return Object{}, err
	}

	if s.TransformBody != nil {
		body, err = s.TransformBody(name, body)
		if err != nil {
			return Object{}, fmt.Errorf("%w: %v", ErrObjectNotFound, err)
		}
	}
	if s.CheckBody != nil {
		if err := s.CheckBody(name, body); err != nil {
			return Object{}, err
		}
	}

	obj := NewObject(resp.Header.Get("Content-Type"), body)
	obj.LastModified = parseLastModified(resp, s.logger)
	s.logger.Debug().Str("name", name).Int("bytes", len(body)).Msg("http get")
	return obj, nil
}

// Put implements ObjectStore; HTTP upstreams are read-only.
func (s *HTTPStore) Put(ctx context.Context, name string, obj Object) error {
	return fmt.Errorf("%w: no upload to HTTP upstream", ErrWriteNotSupported)
}

// JSON fetches a URL through the throttled exchange and returns the raw
// body of a 2xx response. Helper for composed-API stores that issue many
// sub-requests per object.
func (s *HTTPStore) JSON(ctx context.Context, url string) ([]byte, error) {
	_, body, err := s.Do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), []byte("{")) &&
		!bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), []byte("[")) {
		return nil, fmt.Errorf("%w: response is not JSON", ErrObjectNotFound)
	}
	return body, nil
}
