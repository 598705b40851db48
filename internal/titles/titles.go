// Package titles stores anime titles keyed by (aid, type, lang, value).
package titles

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/animemeta/animemeta/internal/anime"
)

// Repo is a durable map of title rows with replace-on-conflict semantics.
// Empty fields in a Find query mean "no restriction on that field".
type Repo interface {
	Find(ctx context.Context, title anime.Title) ([]anime.TitleEntry, error)
	Store(ctx context.Context, entry anime.TitleEntry) error
	Remove(ctx context.Context, title anime.Title) error
	Purge(ctx context.Context) error
}

// SQLRepo persists titles in a sqlite table.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo {
	return &SQLRepo{db: db}
}

// Find returns all rows matching the non-empty fields of the query. A
// fully-empty query returns nothing: listing the whole table is not allowed.
func (r *SQLRepo) Find(ctx context.Context, title anime.Title) ([]anime.TitleEntry, error) {
	var (
		conds []string
		args  []any
	)
	if title.Value != "" {
		conds = append(conds, "value = ?")
		args = append(args, title.Value)
	}
	if title.Lang != "" {
		conds = append(conds, "lang = ?")
		args = append(args, title.Lang)
	}
	if title.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, title.Type)
	}
	if title.Aid != "" {
		conds = append(conds, "aid = ?")
		args = append(args, title.Aid)
	}
	if len(conds) == 0 {
		return nil, nil
	}

	query := "SELECT aid, type, lang, value, age FROM titles WHERE " + strings.Join(conds, " AND ")
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find titles: %w", err)
	}
	defer rows.Close()

	var result []anime.TitleEntry
	for rows.Next() {
		var (
			entry anime.TitleEntry
			age   string
		)
		if err := rows.Scan(&entry.Title.Aid, &entry.Title.Type, &entry.Title.Lang, &entry.Title.Value, &age); err != nil {
			return nil, fmt.Errorf("scan title row: %w", err)
		}
		if age != "" {
			if parsed, err := time.Parse(time.RFC3339, age); err == nil {
				entry.Age = parsed
			}
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// Store inserts a row; an existing row with the same key is replaced.
func (r *SQLRepo) Store(ctx context.Context, entry anime.TitleEntry) error {
	age := ""
	if !entry.Age.IsZero() {
		age = entry.Age.UTC().Format(time.RFC3339)
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO titles (aid, type, lang, value, age) VALUES (?, ?, ?, ?, ?)",
		entry.Title.Aid, entry.Title.Type, entry.Title.Lang, entry.Title.Value, age)
	if err != nil {
		return fmt.Errorf("store title: %w", err)
	}
	return nil
}

// Remove deletes rows matching the query. The value is required; the other
// fields narrow the deletion when set.
func (r *SQLRepo) Remove(ctx context.Context, title anime.Title) error {
	if title.Value == "" {
		return fmt.Errorf("remove titles: a value is required")
	}

	conds := []string{"value = ?"}
	args := []any{title.Value}
	if title.Aid != "" {
		conds = append(conds, "aid = ?")
		args = append(args, title.Aid)
	}
	if title.Lang != "" {
		conds = append(conds, "lang = ?")
		args = append(args, title.Lang)
	}
	if title.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, title.Type)
	}

	_, err := r.db.ExecContext(ctx,
		"DELETE FROM titles WHERE "+strings.Join(conds, " AND "), args...)
	if err != nil {
		return fmt.Errorf("remove titles: %w", err)
	}
	return nil
}

// Purge deletes every row.
func (r *SQLRepo) Purge(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM titles"); err != nil {
		return fmt.Errorf("purge titles: %w", err)
	}
	return nil
}

// OverlayRepo composes a read-only base with a writable upper layer:
// reads union both, writes and removes target the upper only.
type OverlayRepo struct {
	Base  Repo
	Upper Repo
}

func NewOverlayRepo(base, upper Repo) *OverlayRepo {
	return &OverlayRepo{Base: base, Upper: upper}
}

func (r *OverlayRepo) Find(ctx context.Context, title anime.Title) ([]anime.TitleEntry, error) {
	base, err := r.Base.Find(ctx, title)
	if err != nil {
		return nil, err
	}
	upper, err := r.Upper.Find(ctx, title)
	if err != nil {
		return nil, err
	}
	return append(base, upper...), nil
}

func (r *OverlayRepo) Store(ctx context.Context, entry anime.TitleEntry) error {
	return r.Upper.Store(ctx, entry)
}

func (r *OverlayRepo) Remove(ctx context.Context, title anime.Title) error {
	return r.Upper.Remove(ctx, title)
}

func (r *OverlayRepo) Purge(ctx context.Context) error {
	return r.Upper.Purge(ctx)
}
