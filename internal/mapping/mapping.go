// Package mapping persists confirmed anidb↔tmdb id pairs and resolves
// title queries into candidate cross-catalog mappings.
package mapping

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/database"
	"github.com/animemeta/animemeta/internal/store"
	"github.com/animemeta/animemeta/internal/urlutil"
)

// AnimeMapping pairs an anidb anime id (decimal digits) with a tmdb
// season id (T<show>S<season> form). As a query, an empty field means
// "not restricted".
type AnimeMapping struct {
	Anidb string `json:"anidb"`
	Tmdb  string `json:"tmdb"`
}

// Repo stores confirmed mappings. The pair (anidb, tmdb) is the primary
// key with replace-on-conflict. Kept open for a third metadata provider.
type Repo interface {
	// ResolveTmdb returns all pairs for the query's anidb id, which is
	// required.
	ResolveTmdb(ctx context.Context, query AnimeMapping) ([]AnimeMapping, error)
	// ResolveAnidb returns all pairs for the query's tmdb id, which is
	// required.
	ResolveAnidb(ctx context.Context, query AnimeMapping) ([]AnimeMapping, error)
	// Load returns the exact pair, or nil when it does not exist. Both
	// ids are required.
	Load(ctx context.Context, query AnimeMapping) (*AnimeMapping, error)
	// Store inserts the pairs. With replace set, any existing pair
	// sharing either id with an incoming one is deleted first, so each
	// anidb id maps to at most one tmdb season and vice versa.
	Store(ctx context.Context, values []AnimeMapping, replace bool) error
	// Remove deletes pairs matching the non-empty fields of the query.
	// An empty query removes nothing.
	Remove(ctx context.Context, query AnimeMapping) error
	Dump(ctx context.Context) ([]AnimeMapping, error)
	Purge(ctx context.Context) error
}

// FromURL builds a repo from a location URL: sqlite://path for the
// relational variant, any object-store URL for the JSON document variant
// (the last path element names the document, defaulting to a .json
// suffix).
func FromURL(rawURL string, logger zerolog.Logger) (Repo, error) {
	parsed, err := urlutil.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid mapping repo url %q: %w", rawURL, err)
	}

	if parsed.Scheme() == "sqlite" {
		dbPath := parsed.Path()
		if dbPath == "" {
			dbPath = parsed.Host()
		}
		db, err := database.New(dbPath)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		return NewSQLRepo(db.Conn()), nil
	}

	docPath := parsed.Path()
	if !strings.HasSuffix(strings.ToLower(docPath), ".json") {
		docPath += ".json"
	}
	dir, filename := path.Split(docPath)

	backend, err := store.FromURL(parsed.WithPath(strings.TrimSuffix(dir, "/")).String(), logger)
	if err != nil {
		return nil, err
	}
	return NewJSONRepo(filename, backend, logger)
}
