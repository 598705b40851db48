// Package app assembles the repositories and cached stores behind the
// HTTP API from the configuration.
package app

import (
	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/anidb"
	"github.com/animemeta/animemeta/internal/anime"
	"github.com/animemeta/animemeta/internal/config"
	"github.com/animemeta/animemeta/internal/database"
	"github.com/animemeta/animemeta/internal/mapping"
	"github.com/animemeta/animemeta/internal/store"
	"github.com/animemeta/animemeta/internal/titles"
	"github.com/animemeta/animemeta/internal/tmdb"
)

// App bundles every shared component. Fields are exported so tests can
// assemble an App from fakes.
type App struct {
	AnidbTitles *anidb.TitleIndex
	AnidbRaw    store.ObjectStore
	AnidbAnimes anime.Repo
	AnidbImages store.ObjectStore

	TmdbTitles titles.Repo
	TmdbRaw    store.ObjectStore
	TmdbAnimes anime.Repo
	TmdbImages store.ObjectStore

	Mappings mapping.Repo
	Matcher  *mapping.TitleMatcher

	extrasDB *database.DB
}

// New builds the component graph. Every upstream is wrapped in a cached
// store at its configured location and lifetime.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{}

	// anidb titles dump behind its cache, parsed into the search index
	titlesRaw, err := anidb.TitleStoreFromURL(cfg.Anidb.Titles.URL, logger)
	if err != nil {
		return nil, err
	}
	titlesCache, err := store.FromURL(cfg.Anidb.Titles.CacheURL, logger)
	if err != nil {
		return nil, err
	}
	titlesStore := store.NewCachedStore(titlesRaw, titlesCache, cfg.Anidb.Titles.CacheTime, logger)

	a.extrasDB, err = database.NewMemory()
	if err != nil {
		return nil, err
	}
	if err := a.extrasDB.Migrate(); err != nil {
		a.Close()
		return nil, err
	}
	extras := titles.NewSQLRepo(a.extrasDB.Conn())

	a.AnidbTitles, err = anidb.NewTitleIndex(titlesStore, extras, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	// anidb HTTP API and image CDN behind their caches
	animeRaw, err := anidb.AnimeStoreFromURL(cfg.Anidb.API.URL, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	animeCache, err := store.FromURL(cfg.Anidb.API.CacheURL, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.AnidbRaw = store.NewCachedStore(animeRaw, animeCache, cfg.Anidb.API.CacheTime, logger)
	a.AnidbAnimes = anidb.NewAnimeRepo(a.AnidbRaw, a.AnidbTitles, logger)

	imageRaw, err := anidb.ImageStoreFromURL(cfg.Anidb.Image.URL, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	imageCache, err := store.FromURL(cfg.Anidb.Image.CacheURL, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.AnidbImages = store.NewCachedStore(imageRaw, imageCache, cfg.Anidb.Image.CacheTime, logger)

	// tmdb composed shows and image CDN behind their caches
	apiURL := cfg.Tmdb.APIURL()
	showRaw, err := tmdb.ShowStoreFromURL(apiURL, cfg.Tmdb.Languages, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	showCache, err := store.FromURL(cfg.Tmdb.API.CacheURL, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.TmdbRaw = store.NewCachedStore(showRaw, showCache, cfg.Tmdb.API.CacheTime, logger)
	a.TmdbAnimes = tmdb.NewAnimeRepo(a.TmdbRaw, logger)

	// the image CDN location comes from /configuration, so the image
	// store starts from the API URL unless overridden
	tmdbImageURL := cfg.Tmdb.Image.URL
	if tmdbImageURL == "" {
		tmdbImageURL = apiURL
	}
	tmdbImageRaw, err := tmdb.ImageStoreFromURL(tmdbImageURL, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	tmdbImageCache, err := store.FromURL(cfg.Tmdb.Image.CacheURL, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.TmdbImages = store.NewCachedStore(tmdbImageRaw, tmdbImageCache, cfg.Tmdb.Image.CacheTime, logger)

	a.TmdbTitles, err = tmdb.NewTitleRepo(apiURL, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Mappings, err = mapping.FromURL(cfg.AnimeMapping.URL, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Matcher = mapping.NewTitleMatcher(a.AnidbTitles, a.TmdbTitles, a.Mappings, logger)

	return a, nil
}

// Close releases the in-memory databases.
func (a *App) Close() error {
	var first error
	if a.AnidbTitles != nil {
		first = a.AnidbTitles.Close()
	}
	if a.extrasDB != nil {
		if err := a.extrasDB.Close(); err != nil && first == nil {
			first = err
		}
	}
	if closer, ok := a.Mappings.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
