package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/database"
	"github.com/animemeta/animemeta/internal/store"
)

// JSONRepo keeps the authoritative mapping list as one JSON document in
// an object store. Mappings are few and seldom written, so the whole
// document is loaded lazily on first access and rewritten on every
// mutation; reads go to an in-memory relational cache. Modification of
// the backing document from outside is not supported.
type JSONRepo struct {
	filename string
	backend  store.ObjectStore
	logger   zerolog.Logger

	mu     sync.Mutex
	db     *database.DB
	cache  *SQLRepo
	loaded bool
}

func NewJSONRepo(filename string, backend store.ObjectStore, logger zerolog.Logger) (*JSONRepo, error) {
	db, err := database.NewMemory()
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return &JSONRepo{
		filename: filename,
		backend:  backend,
		logger:   logger.With().Str("component", "mapping-repo").Str("file", filename).Logger(),
		db:       db,
		cache:    NewSQLRepo(db.Conn()),
	}, nil
}

func (r *JSONRepo) Close() error {
	return r.db.Close()
}

// load fills the cache from the backing document once. A missing
// document means an empty repo; an undecodable one is logged and treated
// as empty rather than blocking every operation.
func (r *JSONRepo) load(ctx context.Context) error {
	if r.loaded {
		return nil
	}

	if err := r.cache.Purge(ctx); err != nil {
		return err
	}

	obj, err := r.backend.Get(ctx, r.filename)
	switch {
	case errors.Is(err, store.ErrObjectNotFound):
	case err != nil:
		return fmt.Errorf("loading mapping document: %w", err)
	case len(obj.Data) > 0:
		var items []AnimeMapping
		if err := json.Unmarshal(obj.Data, &items); err != nil {
			r.logger.Error().Err(err).Msg("undecodable mapping document, starting empty")
		} else if err := r.cache.Store(ctx, items, false); err != nil {
			r.logger.Error().Err(err).Msg("invalid mapping document, starting empty")
			if err := r.cache.Purge(ctx); err != nil {
				return err
			}
		}
	}

	r.loaded = true
	return nil
}

func (r *JSONRepo) save(ctx context.Context) error {
	items, err := r.cache.Dump(ctx)
	if err != nil {
		return err
	}
	if items == nil {
		items = []AnimeMapping{}
	}
	data, err := json.MarshalIndent(items, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding mapping document: %w", err)
	}
	if err := r.backend.Put(ctx, r.filename, store.NewObject("text/json", data)); err != nil {
		return fmt.Errorf("saving mapping document: %w", err)
	}
	return nil
}

func (r *JSONRepo) ResolveTmdb(ctx context.Context, query AnimeMapping) ([]AnimeMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r.cache.ResolveTmdb(ctx, query)
}

func (r *JSONRepo) ResolveAnidb(ctx context.Context, query AnimeMapping) ([]AnimeMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r.cache.ResolveAnidb(ctx, query)
}

func (r *JSONRepo) Load(ctx context.Context, query AnimeMapping) (*AnimeMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r.cache.Load(ctx, query)
}

func (r *JSONRepo) Store(ctx context.Context, values []AnimeMapping, replace bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return err
	}
	if err := r.cache.Store(ctx, values, replace); err != nil {
		return err
	}
	return r.save(ctx)
}

func (r *JSONRepo) Remove(ctx context.Context, query AnimeMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return err
	}
	if err := r.cache.Remove(ctx, query); err != nil {
		return err
	}
	return r.save(ctx)
}

func (r *JSONRepo) Dump(ctx context.Context) ([]AnimeMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r.cache.Dump(ctx)
}

func (r *JSONRepo) Purge(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return err
	}
	if err := r.cache.Purge(ctx); err != nil {
		return err
	}
	return r.save(ctx)
}
