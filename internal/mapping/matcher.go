package mapping

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/anime"
	"github.com/animemeta/animemeta/internal/titles"
)

// TitleMatchResult pairs an anidb title with a tmdb candidate. A perfect
// string match or a stored mapping is flagged so the caller can persist
// it; unflagged results are suggestions for a human to pick from.
type TitleMatchResult struct {
	Anidb anime.Title `json:"anidb"`
	Tmdb  anime.Title `json:"tmdb"`

	IsFromMatch   bool `json:"is_from_match"`
	IsFromStorage bool `json:"is_from_storage"`
}

// TitleMatcher resolves a title string into candidate anidb↔tmdb
// mappings, with anidb as the primary catalog. One title can point to
// several anidb animes, and each anidb anime to several tmdb seasons, so
// results may contain wrong pairs; it is up to the caller to select one.
//
// The mapping repo is consulted first. When every anidb hit resolves
// from storage, the tmdb title repo is not used at all, sparing the
// upstream search budget.
type TitleMatcher struct {
	anidb    titles.Repo
	tmdb     titles.Repo
	mappings Repo
	logger   zerolog.Logger
}

func NewTitleMatcher(anidb, tmdb titles.Repo, mappings Repo, logger zerolog.Logger) *TitleMatcher {
	return &TitleMatcher{
		anidb:    anidb,
		tmdb:     tmdb,
		mappings: mappings,
		logger:   logger.With().Str("component", "title-matcher").Logger(),
	}
}

// Match expects title.Value to be set; Aid narrows to a known anidb id
// and Lang is passed through to both title repos.
func (m *TitleMatcher) Match(ctx context.Context, title anime.Title) ([]TitleMatchResult, error) {
	anidbTitles, err := m.anidb.Find(ctx, title)
	if err != nil {
		return nil, err
	}
	aids, groups := indexTitles(anidbTitles)

	var result []TitleMatchResult

	// eliminate animes we have a persisted mapping for
	for _, aid := range aids {
		main, err := mainTitle(groups[aid])
		if err != nil {
			return nil, err
		}
		stored, err := m.mappings.ResolveTmdb(ctx, AnimeMapping{Anidb: main.Aid})
		if err != nil {
			return nil, err
		}
		for _, pair := range stored {
			result = append(result, TitleMatchResult{
				Anidb:         main.Title,
				Tmdb:          anime.Title{Aid: pair.Tmdb},
				IsFromStorage: true,
			})
		}
	}

	remaining := aids[:0]
	for _, aid := range aids {
		resolved := false
		for _, item := range result {
			if item.Anidb.Aid == aid {
				resolved = true
				break
			}
		}
		if !resolved {
			remaining = append(remaining, aid)
		}
	}
	if len(remaining) == 0 {
		return result, nil
	}

	// match the leftover animes one after another against tmdb
	for _, aid := range remaining {
		group, err := m.anidb.Find(ctx, anime.Title{Aid: aid})
		if err != nil {
			return nil, err
		}
		matched, err := m.findTmdbMatch(ctx, group, title.Lang)
		if err != nil {
			return nil, err
		}
		result = append(result, matched...)
	}
	return result, nil
}

// findTmdbMatch tries the candidate titles of one anidb anime against
// the tmdb search, one upstream request per candidate. A perfect match
// invalidates every other pair, so it is returned alone; otherwise the
// hits of all attempts accumulate — they differ by query language, which
// helps the user decide.
func (m *TitleMatcher) findTmdbMatch(ctx context.Context, group []anime.TitleEntry, lang string) ([]TitleMatchResult, error) {
	var result []TitleMatchResult

	for _, candidate := range mappingTitles(group) {
		tmdbTitles, err := m.tmdb.Find(ctx, anime.Title{Lang: lang, Value: candidate.Value})
		if err != nil {
			return nil, err
		}

		if perfect, ok := perfectMatch(group, tmdbTitles); ok {
			return []TitleMatchResult{perfect}, nil
		}
		for _, tmdbTitle := range tmdbTitles {
			result = append(result, TitleMatchResult{Anidb: candidate.Title, Tmdb: tmdbTitle.Title})
		}
	}
	return result, nil
}

// perfectMatch scans the cartesian product for an exact normalized title
// equality. Deliberately strict: anime sequels often differ by a single
// character, so no fuzzy matching.
func perfectMatch(anidbTitles, tmdbTitles []anime.TitleEntry) (TitleMatchResult, bool) {
	for _, at := range anidbTitles {
		t1 := strings.ToLower(strings.TrimSpace(at.Value))
		if t1 == "" {
			continue
		}
		for _, tt := range tmdbTitles {
			t2 := strings.ToLower(strings.TrimSpace(tt.Value))
			if t1 == t2 {
				return TitleMatchResult{Anidb: at.Title, Tmdb: tt.Title, IsFromMatch: true}, true
			}
		}
	}
	return TitleMatchResult{}, false
}

// indexTitles groups entries by aid, keeping first-seen order.
func indexTitles(entries []anime.TitleEntry) ([]string, map[string][]anime.TitleEntry) {
	var aids []string
	groups := make(map[string][]anime.TitleEntry)
	for _, entry := range entries {
		if _, ok := groups[entry.Aid]; !ok {
			aids = append(aids, entry.Aid)
		}
		groups[entry.Aid] = append(groups[entry.Aid], entry)
	}
	return aids, groups
}

// mainTitle picks the representative title of one anime's group.
func mainTitle(group []anime.TitleEntry) (anime.TitleEntry, error) {
	for _, entry := range group {
		if entry.Type == anime.TitleMain {
			return entry, nil
		}
	}
	for _, entry := range group {
		if entry.Type == anime.TitleOfficial && entry.Lang == "en" {
			return entry, nil
		}
	}
	for _, entry := range group {
		if entry.Type == anime.TitleOfficial && entry.Lang == "ja" {
			return entry, nil
		}
	}
	if len(group) > 0 {
		return group[0], nil
	}
	return anime.TitleEntry{}, fmt.Errorf("no suitable main title found")
}

// mappingTitles lists the titles worth searching tmdb for, in order of
// descending confidence. Kept short: every entry costs one upstream
// request.
func mappingTitles(group []anime.TitleEntry) []anime.TitleEntry {
	var out []anime.TitleEntry
	for _, entry := range group {
		if entry.Type == anime.TitleOfficial && entry.Lang == "en" {
			out = append(out, entry)
		}
	}
	for _, entry := range group {
		if entry.Type == anime.TitleMain {
			out = append(out, entry)
		}
	}
	for _, entry := range group {
		if entry.Type == anime.TitleOfficial && entry.Lang == "ja" {
			out = append(out, entry)
		}
	}
	return out
}
