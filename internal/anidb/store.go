package anidb

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/store"
	"github.com/animemeta/animemeta/internal/urlutil"
)

// Client registration with the anidb HTTP API.
const (
	userAgent     = "animemeta"
	clientID      = "animemeta"
	clientVersion = "1"
)

// anidb enforces a hard per-client rate limit; breaching it gets the
// client banned for a long time.
const (
	reqInterval = 4 * time.Second
	errInterval = 30 * time.Minute
)

// NewTitleStore builds the store for the daily anime-titles.xml.gz dump.
// The dump is one fixed gzip file; the object name is ignored.
func NewTitleStore(titlesURL string, logger zerolog.Logger) *store.HTTPStore {
	s := store.NewHTTPStore(store.HTTPStoreConfig{
		UserAgent:   userAgent,
		ReqInterval: reqInterval,
		ErrInterval: errInterval,
	}, logger.With().Str("component", "anidb-titles").Logger())

	s.MakeURL = func(name string, stat bool) (string, error) {
		return titlesURL, nil
	}
	s.TransformBody = func(name string, data []byte) ([]byte, error) {
		// the transport is plain; the payload itself is a gzip file
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("titles dump is not gzip: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)
	}
	// never HEAD the dump; it counts as fresh by definition
	s.StatContentType = "text/xml"
	return s
}

// TitleStoreFromURL dispatches on the URL form: http(s) hits the anidb
// dump, a file URL or absolute path reads a local copy of the dump.
func TitleStoreFromURL(titlesURL string, logger zerolog.Logger) (store.ObjectStore, error) {
	switch {
	case strings.HasPrefix(titlesURL, "http://"), strings.HasPrefix(titlesURL, "https://"):
		return NewTitleStore(titlesURL, logger), nil
	case strings.HasPrefix(titlesURL, "file://"), strings.HasPrefix(titlesURL, "/"):
		path, err := store.ParseFileURL(titlesURL)
		if err != nil {
			return nil, err
		}
		return store.NewSingleFileStore(path, logger), nil
	default:
		return nil, fmt.Errorf("invalid titles url %q: expected http(s), file or absolute path", titlesURL)
	}
}

// NewAnimeStore builds the store for per-anime XML documents from the
// anidb HTTP API (base URL like http://api.anidb.net:9001/httpapi).
// Objects are named "<aid>.xml".
//
// The API hides errors behind HTTP 200 as <error> documents, so the body
// is inspected on every read. A ban marks the backoff window so the
// layered cache stops hitting the API entirely.
func NewAnimeStore(baseURL string, logger zerolog.Logger) *store.HTTPStore {
	log := logger.With().Str("component", "anidb-anime").Logger()
	s := store.NewHTTPStore(store.HTTPStoreConfig{
		UserAgent:   userAgent,
		ReqInterval: reqInterval,
		ErrInterval: errInterval,
	}, log)

	s.MakeURL = func(name string, stat bool) (string, error) {
		aid := strings.TrimSuffix(name, ".xml")
		if aid == "" || strings.IndexFunc(aid, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			return "", fmt.Errorf("%w: anidb aid %q is not decimal", store.ErrObjectNotFound, aid)
		}
		base, err := urlutil.Parse(baseURL)
		if err != nil {
			return "", fmt.Errorf("invalid anidb api url %q: %w", baseURL, err)
		}
		return base.
			WithQuery("request", "anime").
			WithQuery("client", clientID).
			WithQuery("clientver", clientVersion).
			WithQuery("protover", "1").
			WithQuery("aid", aid).
			String(), nil
	}
	s.CheckBody = func(name string, data []byte) error {
		switch apiErr := ParseAPIError(data); apiErr {
		case "":
			return nil
		case "anime not found":
			log.Error().Str("name", name).Msg("anime not found in the anidb API")
			return fmt.Errorf("%w: anime not found", store.ErrObjectNotFound)
		case "banned":
			log.Error().Msg("anidb client got banned")
			s.MarkError()
			return fmt.Errorf("%w: anidb client got banned", store.ErrObjectNotFound)
		default:
			log.Error().Str("error", apiErr).Msg("unknown anidb error")
			s.MarkError()
			return fmt.Errorf("unknown anidb error: %q", apiErr)
		}
	}
	s.StatContentType = "text/xml"
	return s
}

// AnimeStoreFromURL dispatches http(s) URLs to the API store and anything
// else to the generic object store factory (useful for canned test data).
func AnimeStoreFromURL(baseURL string, logger zerolog.Logger) (store.ObjectStore, error) {
	if strings.HasPrefix(baseURL, "http://") || strings.HasPrefix(baseURL, "https://") {
		return NewAnimeStore(baseURL, logger), nil
	}
	return store.FromURL(baseURL, logger)
}

// NewImageStore builds the store for the anidb image CDN (base URL like
// https://cdn-eu.anidb.net/images/main). Object names are image file names.
func NewImageStore(baseURL string, logger zerolog.Logger) *store.HTTPStore {
	s := store.NewHTTPStore(store.HTTPStoreConfig{
		UserAgent:   userAgent,
		ReqInterval: reqInterval,
		ErrInterval: errInterval,
	}, logger.With().Str("component", "anidb-images").Logger())

	s.MakeURL = func(name string, stat bool) (string, error) {
		base, err := urlutil.Parse(baseURL)
		if err != nil {
			return "", fmt.Errorf("invalid anidb image url %q: %w", baseURL, err)
		}
		return base.JoinPath(name).String(), nil
	}
	return s
}

// ImageStoreFromURL dispatches http(s) URLs to the CDN store and anything
// else to the generic object store factory.
func ImageStoreFromURL(baseURL string, logger zerolog.Logger) (store.ObjectStore, error) {
	if strings.HasPrefix(baseURL, "http://") || strings.HasPrefix(baseURL, "https://") {
		return NewImageStore(baseURL, logger), nil
	}
	return store.FromURL(baseURL, logger)
}
