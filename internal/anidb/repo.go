package anidb

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/anime"
	"github.com/animemeta/animemeta/internal/database"
	"github.com/animemeta/animemeta/internal/store"
	"github.com/animemeta/animemeta/internal/titles"
)

// titlesObjectName is the object the title index reads through its store.
const titlesObjectName = "anime-titles.xml"

// TitleIndex is a titles.Repo over the anidb titles dump. The dump is
// parsed into an in-memory sqlite index that is rebuilt whenever the
// backing object expires, so a long-running process keeps seeing fresh
// titles. User-supplied extra titles live in a separate writable layer
// that survives the rebuilds.
type TitleIndex struct {
	xmlStore store.ObjectStore
	db       *database.DB
	xmlRepo  *titles.SQLRepo
	repo     titles.Repo

	mu         sync.Mutex
	loaded     bool
	forever    bool
	validUntil time.Time

	logger zerolog.Logger
}

// NewTitleIndex builds the index. extras receives all writes; reads union
// the parsed dump with it.
func NewTitleIndex(xmlStore store.ObjectStore, extras titles.Repo, logger zerolog.Logger) (*TitleIndex, error) {
	db, err := database.NewMemory()
	if err != nil {
		return nil, fmt.Errorf("title index database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("title index migrations: %w", err)
	}

	xmlRepo := titles.NewSQLRepo(db.Conn())
	return &TitleIndex{
		xmlStore: xmlStore,
		db:       db,
		xmlRepo:  xmlRepo,
		repo:     titles.NewOverlayRepo(xmlRepo, extras),
		logger:   logger.With().Str("component", "anidb-title-index").Logger(),
	}, nil
}

// Close releases the in-memory index.
func (x *TitleIndex) Close() error {
	return x.db.Close()
}

// load rebuilds the index when its validity window has passed. Callers
// hold x.mu.
func (x *TitleIndex) load(ctx context.Context) error {
	if x.loaded && (x.forever || time.Now().Before(x.validUntil)) {
		return nil
	}

	obj, err := x.xmlStore.Get(ctx, titlesObjectName)
	if err != nil {
		return fmt.Errorf("fetch titles dump: %w", err)
	}

	if err := x.xmlRepo.Purge(ctx); err != nil {
		return err
	}

	age := obj.LastModified
	count := 0
	err = ParseTitlesXML(obj.Data, func(title anime.Title) error {
		count++
		return x.xmlRepo.Store(ctx, anime.TitleEntry{Title: title, Age: age})
	})
	if err != nil {
		return fmt.Errorf("parse titles dump: %w", err)
	}

	if expiry, ok := obj.ExpiryTime(); ok {
		x.forever = false
		x.validUntil = expiry
	} else {
		x.forever = true
	}
	x.loaded = true
	x.logger.Info().Int("titles", count).Time("validUntil", x.validUntil).Msg("title index rebuilt")
	return nil
}

// Refresh runs the expiry check now instead of on the next lookup, so a
// background job can take the rebuild cost off the request path.
func (x *TitleIndex) Refresh(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.load(ctx)
}

// Find implements titles.Repo, refreshing the index first when needed.
func (x *TitleIndex) Find(ctx context.Context, title anime.Title) ([]anime.TitleEntry, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.load(ctx); err != nil {
		return nil, err
	}
	return x.repo.Find(ctx, title)
}

// Store implements titles.Repo; the entry goes to the extras layer.
func (x *TitleIndex) Store(ctx context.Context, entry anime.TitleEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.repo.Store(ctx, entry)
}

// Remove implements titles.Repo against the extras layer.
func (x *TitleIndex) Remove(ctx context.Context, title anime.Title) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.repo.Remove(ctx, title)
}

// Purge implements titles.Repo. The dump index rebuilds itself and the
// extras are user data, so there is nothing to purge here.
func (x *TitleIndex) Purge(ctx context.Context) error {
	return nil
}

// AnimeRepo turns cached anidb XML documents into unified anime records.
type AnimeRepo struct {
	store  store.ObjectStore
	titles titles.Repo
	logger zerolog.Logger
}

func NewAnimeRepo(objects store.ObjectStore, titleRepo titles.Repo, logger zerolog.Logger) *AnimeRepo {
	return &AnimeRepo{
		store:  objects,
		titles: titleRepo,
		logger: logger.With().Str("component", "anidb-anime-repo").Logger(),
	}
}

// exists consults the title index before spending an API call: an aid
// absent from the dump (ignoring user extras) does not exist upstream.
func (r *AnimeRepo) exists(ctx context.Context, aid string) (bool, error) {
	entries, err := r.titles.Find(ctx, anime.Title{Aid: aid})
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.Title.Type != anime.TitleExtra {
			return true, nil
		}
	}
	return false, nil
}

// Get fetches and parses anime aid (a decimal string). Returns
// anime.ErrNotFound when the catalog has no such anime.
func (r *AnimeRepo) Get(ctx context.Context, aid string) (anime.Entry, error) {
	ok, err := r.exists(ctx, aid)
	if err != nil {
		return anime.Entry{}, err
	}
	if !ok {
		return anime.Entry{}, fmt.Errorf("%w: anidb %s not in the title index", anime.ErrNotFound, aid)
	}

	obj, err := r.store.Get(ctx, aid+".xml")
	if err != nil {
		if errors.Is(err, store.ErrObjectNotFound) {
			return anime.Entry{}, fmt.Errorf("%w: anidb %s", anime.ErrNotFound, aid)
		}
		return anime.Entry{}, err
	}

	if !isXMLType(obj.ContentType) {
		return anime.Entry{}, fmt.Errorf("expected xml content type, got %q", obj.ContentType)
	}

	parsed, err := ParseAnime(obj.Data)
	if err != nil {
		return anime.Entry{}, err
	}

	if err := r.patchExtraTitles(ctx, &parsed); err != nil {
		return anime.Entry{}, err
	}

	return anime.Entry{Anime: parsed, Age: obj.LastModified}, nil
}

// patchExtraTitles appends user-supplied titles stored under the anime's
// public id.
func (r *AnimeRepo) patchExtraTitles(ctx context.Context, a *anime.Anime) error {
	entries, err := r.titles.Find(ctx, anime.Title{Type: anime.TitleExtra, Aid: a.ID})
	if err != nil {
		return err
	}
	for _, entry := range entries {
		a.Titles = append(a.Titles, entry.Title)
	}
	return nil
}

func isXMLType(contentType string) bool {
	mediatype, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediatype = contentType
	}
	parts := strings.SplitN(mediatype, "/", 2)
	if len(parts) != 2 {
		return false
	}
	subtype := strings.ToLower(parts[1])
	return subtype == "xml" || strings.HasSuffix(subtype, "+xml")
}
