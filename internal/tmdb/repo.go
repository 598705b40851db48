package tmdb

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/anime"
	"github.com/animemeta/animemeta/internal/store"
)

// AnimeRepo turns cached composed show documents into unified anime
// records. Records are always read from the english catalog.
type AnimeRepo struct {
	store  store.ObjectStore
	logger zerolog.Logger
}

func NewAnimeRepo(objects store.ObjectStore, logger zerolog.Logger) *AnimeRepo {
	return &AnimeRepo{
		store:  objects,
		logger: logger.With().Str("component", "tmdb-anime-repo").Logger(),
	}
}

// Get fetches and parses show aid (a decimal string). Returns
// anime.ErrNotFound when the catalog has no such show.
func (r *AnimeRepo) Get(ctx context.Context, aid string) (anime.Entry, error) {
	obj, err := r.store.Get(ctx, "en/"+aid+".json")
	if err != nil {
		if errors.Is(err, store.ErrObjectNotFound) {
			return anime.Entry{}, fmt.Errorf("%w: tmdb %s", anime.ErrNotFound, aid)
		}
		return anime.Entry{}, err
	}

	if !isJSONType(obj.ContentType) {
		return anime.Entry{}, fmt.Errorf("expected json content type, got %q", obj.ContentType)
	}

	parsed, err := ParseShow(obj.Data, "en")
	if err != nil {
		return anime.Entry{}, err
	}
	return anime.Entry{Anime: parsed, Age: obj.LastModified}, nil
}

func isJSONType(contentType string) bool {
	mediatype, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediatype = contentType
	}
	parts := strings.SplitN(mediatype, "/", 2)
	if len(parts) != 2 {
		return false
	}
	subtype := strings.ToLower(parts[1])
	return subtype == "json" || strings.HasSuffix(subtype, "+json")
}
