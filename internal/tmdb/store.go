package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/store"
	"github.com/animemeta/animemeta/internal/throttle"
	"github.com/animemeta/animemeta/internal/urlutil"
)

const userAgent = "animemeta"

// tmdb tolerates a much higher request rate than anidb.
const (
	reqInterval = 250 * time.Millisecond
	errInterval = 15 * time.Minute
)

// showContentType is what the composed show documents are stored as.
const showContentType = "text/json"

// defaultLanguages are the catalog languages served when none are
// configured.
var defaultLanguages = []string{"de", "en"}

// ShowStore composes one logical show document per (language, show id)
// from the many tmdb API endpoints behind it. Object names follow
// "<lang>/<id>.json". The store is read-only; every sub-request shares
// one throttled HTTP client so the composition respects the rate limit
// as a whole.
type ShowStore struct {
	http      *store.HTTPStore
	base      *urlutil.URL
	apiKey    string
	languages []string
	logger    zerolog.Logger
}

// NewShowStore builds the store for a base URL like
// https://api.themoviedb.org/3.
func NewShowStore(baseURL, apiKey string, languages []string, logger zerolog.Logger) (*ShowStore, error) {
	base, err := urlutil.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tmdb api url %q: %w", baseURL, err)
	}
	if len(languages) == 0 {
		languages = defaultLanguages
	}
	log := logger.With().Str("component", "tmdb-shows").Logger()
	return &ShowStore{
		http: store.NewHTTPStore(store.HTTPStoreConfig{
			UserAgent:   userAgent,
			ReqInterval: reqInterval,
			ErrInterval: errInterval,
		}, log),
		base:      base,
		apiKey:    apiKey,
		languages: languages,
		logger:    log,
	}, nil
}

// parseName splits "<lang>/<id>.json" and returns the root show URL.
func (s *ShowStore) parseName(name string) (*urlutil.URL, error) {
	parts := strings.SplitN(strings.Trim(name, "/"), "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: expected <lang>/<id>.json, got %q", store.ErrObjectNotFound, name)
	}
	lang, file := parts[0], parts[1]

	supported := false
	for _, l := range s.languages {
		if l == lang {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("%w: invalid language %q, expected one of %v", store.ErrObjectNotFound, lang, s.languages)
	}

	if !strings.HasSuffix(strings.ToLower(file), ".json") {
		return nil, fmt.Errorf("%w: not a json file: %q", store.ErrObjectNotFound, file)
	}
	tid := file[:len(file)-len(".json")]

	url := s.base.JoinPath("tv", tid).WithQuery("api_key", s.apiKey)
	if lang != "en" {
		url = url.WithQuery("language", lang)
	}
	return url, nil
}

func (s *ShowStore) apiJSON(ctx context.Context, url *urlutil.URL, subpath string) (jsonObj, error) {
	if subpath != "" {
		url = url.JoinPath(subpath)
	}
	body, err := s.http.JSON(ctx, url.String())
	if err != nil {
		return nil, err
	}
	var obj jsonObj
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: decoding API JSON from %s: %v", store.ErrObjectNotFound, url.Path(), err)
	}
	return obj, nil
}

// apiImages fetches <base>/images with the language filter that also
// includes untagged and japanese artwork.
func (s *ShowStore) apiImages(ctx context.Context, url *urlutil.URL, base string) (jsonObj, error) {
	url = url.WithQuery("include_image_language", "en,null,ja")
	subpath := "images"
	if base = strings.TrimSuffix(base, "/"); base != "" {
		subpath = base + "/images"
	}
	return s.apiJSON(ctx, url, subpath)
}

// Stat implements store.ObjectStore. Composed documents have no upstream
// HEAD; they count as fresh by definition.
func (s *ShowStore) Stat(ctx context.Context, name string) (store.Stat, error) {
	if _, err := s.parseName(name); err != nil {
		return store.Stat{}, err
	}
	return store.NewStat(showContentType, 0), nil
}

// Get implements store.ObjectStore by walking the show, its seasons and
// their episodes, inlining images, alternative titles and aggregate
// credits, and serializing the composition to one JSON blob.
func (s *ShowStore) Get(ctx context.Context, name string) (store.Object, error) {
	url, err := s.parseName(name)
	if err != nil {
		return store.Object{}, err
	}

	main, err := s.apiJSON(ctx, url, "")
	if err != nil {
		return store.Object{}, err
	}
	if main["images"], err = s.apiImages(ctx, url, ""); err != nil {
		return store.Object{}, err
	}
	if main["alternative_titles"], err = s.apiJSON(ctx, url, "alternative_titles"); err != nil {
		return store.Object{}, err
	}

	err = eachNumbered(main, "seasons", "season_number", func(season jsonObj, num int) error {
		seasonBase := fmt.Sprintf("season/%d", num)
		full, err := s.apiJSON(ctx, url, seasonBase)
		if err != nil {
			return err
		}
		// replace the stub in place so the seasons list stays ordered
		for key := range season {
			delete(season, key)
		}
		for key, value := range full {
			season[key] = value
		}
		if season["images"], err = s.apiImages(ctx, url, seasonBase); err != nil {
			return err
		}
		if season["credits"], err = s.apiJSON(ctx, url, seasonBase+"/aggregate_credits"); err != nil {
			return err
		}

		return eachNumbered(season, "episodes", "episode_number", func(episode jsonObj, epNum int) error {
			episodeBase := fmt.Sprintf("%s/episode/%d", seasonBase, epNum)
			full, err := s.apiJSON(ctx, url, episodeBase)
			if err != nil {
				return err
			}
			for key := range episode {
				delete(episode, key)
			}
			for key, value := range full {
				episode[key] = value
			}
			episode["images"], err = s.apiImages(ctx, url, episodeBase)
			return err
		})
	})
	if err != nil {
		return store.Object{}, err
	}

	data, err := json.Marshal(main)
	if err != nil {
		return store.Object{}, fmt.Errorf("serializing composed show: %w", err)
	}
	s.logger.Debug().Str("name", name).Int("bytes", len(data)).Msg("composed show document")
	return store.NewObject(showContentType, data), nil
}

// Put implements store.ObjectStore; the API is read-only.
func (s *ShowStore) Put(ctx context.Context, name string, obj store.Object) error {
	return fmt.Errorf("%w: no upload to the tmdb API", store.ErrWriteNotSupported)
}

// ShowStoreFromURL dispatches http(s) URLs (which must carry an api_key
// query parameter) to the API store and anything else to the generic
// object store factory.
func ShowStoreFromURL(rawURL string, languages []string, logger zerolog.Logger) (store.ObjectStore, error) {
	parsed, err := urlutil.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tmdb api url %q: %w", rawURL, err)
	}
	if scheme := parsed.Scheme(); scheme == "http" || scheme == "https" {
		apiKey := parsed.Query("api_key")
		if apiKey == "" {
			return nil, fmt.Errorf("the tmdb api url must carry the api_key query parameter")
		}
		return NewShowStore(rawURL, apiKey, languages, logger)
	}
	return store.FromURL(rawURL, logger)
}

// configInterval is how long a resolved image base URL is trusted before
// /configuration is consulted again.
const configInterval = 2 * 24 * time.Hour

// ImageStore serves original-size images from the CDN base URL announced
// by the tmdb /configuration endpoint. The configuration lookup needs the
// api_key (carried in the API URL's query); the image files do not.
type ImageStore struct {
	http           *store.HTTPStore
	apiURL         *urlutil.URL
	mu             sync.Mutex
	base           *urlutil.URL
	configThrottle *throttle.Throttler
	logger         zerolog.Logger
}

// NewImageStore builds the store for an API URL like
// https://api.themoviedb.org/3?api_key=….
func NewImageStore(apiURL string, logger zerolog.Logger) (*ImageStore, error) {
	parsed, err := urlutil.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tmdb api url %q: %w", apiURL, err)
	}
	log := logger.With().Str("component", "tmdb-images").Logger()
	s := &ImageStore{
		http: store.NewHTTPStore(store.HTTPStoreConfig{
			UserAgent:   userAgent,
			ReqInterval: reqInterval,
			ErrInterval: errInterval,
		}, log),
		apiURL:         parsed,
		configThrottle: throttle.New(configInterval),
		logger:         log,
	}
	s.http.MakeURL = s.makeURL
	return s, nil
}

// refreshBase resolves the image base URL, re-checking /configuration at
// most once per configInterval.
func (s *ImageStore) refreshBase(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.base != nil && !s.configThrottle.Check() {
		return nil
	}

	body, err := s.http.JSON(ctx, s.apiURL.JoinPath("configuration").String())
	if err != nil {
		return fmt.Errorf("tmdb /configuration: %w", err)
	}
	var config struct {
		Images struct {
			SecureBaseURL string `json:"secure_base_url"`
		} `json:"images"`
	}
	if err := json.Unmarshal(body, &config); err != nil || config.Images.SecureBaseURL == "" {
		return fmt.Errorf("%w: unusable tmdb configuration", store.ErrObjectNotFound)
	}

	base, err := urlutil.Parse(config.Images.SecureBaseURL)
	if err != nil {
		return fmt.Errorf("invalid image base url %q: %w", config.Images.SecureBaseURL, err)
	}
	s.base = base
	s.configThrottle.Mark()
	s.logger.Info().Str("base", config.Images.SecureBaseURL).Msg("resolved tmdb image base url")
	return nil
}

func (s *ImageStore) makeURL(name string, stat bool) (string, error) {
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()
	if base == nil {
		return "", fmt.Errorf("%w: image base url not resolved", store.ErrObjectNotFound)
	}
	return base.JoinPath("original", strings.Trim(name, "/")).String(), nil
}

// Stat implements store.ObjectStore.
func (s *ImageStore) Stat(ctx context.Context, name string) (store.Stat, error) {
	if err := s.refreshBase(ctx); err != nil {
		return store.Stat{}, err
	}
	return s.http.Stat(ctx, name)
}

// Get implements store.ObjectStore.
func (s *ImageStore) Get(ctx context.Context, name string) (store.Object, error) {
	if err := s.refreshBase(ctx); err != nil {
		return store.Object{}, err
	}
	return s.http.Get(ctx, name)
}

// Put implements store.ObjectStore; the CDN is read-only.
func (s *ImageStore) Put(ctx context.Context, name string, obj store.Object) error {
	return fmt.Errorf("%w: no upload to the tmdb image CDN", store.ErrWriteNotSupported)
}

// ImageStoreFromURL dispatches http(s) URLs to the CDN store and anything
// else to the generic object store factory.
func ImageStoreFromURL(rawURL string, logger zerolog.Logger) (store.ObjectStore, error) {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return NewImageStore(rawURL, logger)
	}
	return store.FromURL(rawURL, logger)
}
