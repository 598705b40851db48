package mapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SQLRepo persists mappings in the anime_mapping sqlite table.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo {
	return &SQLRepo{db: db}
}

func (r *SQLRepo) queryField(ctx context.Context, field, value string) ([]AnimeMapping, error) {
	query := "SELECT anidb_id, tmdb_id FROM anime_mapping"
	var args []any
	if field != "" {
		query += " WHERE " + field + " = ?"
		args = append(args, value)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()

	var result []AnimeMapping
	for rows.Next() {
		var m AnimeMapping
		if err := rows.Scan(&m.Anidb, &m.Tmdb); err != nil {
			return nil, fmt.Errorf("scan mapping row: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *SQLRepo) ResolveTmdb(ctx context.Context, query AnimeMapping) ([]AnimeMapping, error) {
	if query.Anidb == "" {
		return nil, fmt.Errorf("resolve tmdb: the anidb id is required")
	}
	return r.queryField(ctx, "anidb_id", query.Anidb)
}

func (r *SQLRepo) ResolveAnidb(ctx context.Context, query AnimeMapping) ([]AnimeMapping, error) {
	if query.Tmdb == "" {
		return nil, fmt.Errorf("resolve anidb: the tmdb id is required")
	}
	return r.queryField(ctx, "tmdb_id", query.Tmdb)
}

func (r *SQLRepo) Load(ctx context.Context, query AnimeMapping) (*AnimeMapping, error) {
	if query.Anidb == "" || query.Tmdb == "" {
		return nil, fmt.Errorf("load mapping: both ids are required")
	}

	var m AnimeMapping
	err := r.db.QueryRowContext(ctx,
		"SELECT anidb_id, tmdb_id FROM anime_mapping WHERE anidb_id = ? AND tmdb_id = ?",
		query.Anidb, query.Tmdb).Scan(&m.Anidb, &m.Tmdb)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load mapping: %w", err)
	}
	return &m, nil
}

func (r *SQLRepo) Store(ctx context.Context, values []AnimeMapping, replace bool) error {
	for _, value := range values {
		if value.Anidb == "" || value.Tmdb == "" {
			return fmt.Errorf("store mapping: both ids are required")
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store mappings: %w", err)
	}
	defer tx.Rollback()

	for _, value := range values {
		if replace {
			// either id may already be confirmed against a different partner
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM anime_mapping WHERE anidb_id = ? OR tmdb_id = ?",
				value.Anidb, value.Tmdb); err != nil {
				return fmt.Errorf("store mappings: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO anime_mapping (anidb_id, tmdb_id) VALUES (?, ?)",
			value.Anidb, value.Tmdb); err != nil {
			return fmt.Errorf("store mappings: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLRepo) Remove(ctx context.Context, query AnimeMapping) error {
	var (
		conds []string
		args  []any
	)
	if query.Anidb != "" {
		conds = append(conds, "anidb_id = ?")
		args = append(args, query.Anidb)
	}
	if query.Tmdb != "" {
		conds = append(conds, "tmdb_id = ?")
		args = append(args, query.Tmdb)
	}
	if len(conds) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		"DELETE FROM anime_mapping WHERE "+strings.Join(conds, " AND "), args...)
	if err != nil {
		return fmt.Errorf("remove mappings: %w", err)
	}
	return nil
}

func (r *SQLRepo) Dump(ctx context.Context) ([]AnimeMapping, error) {
	return r.queryField(ctx, "", "")
}

func (r *SQLRepo) Purge(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM anime_mapping"); err != nil {
		return fmt.Errorf("purge mappings: %w", err)
	}
	return nil
}
