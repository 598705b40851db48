package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/anime"
	"github.com/animemeta/animemeta/internal/store"
	"github.com/animemeta/animemeta/internal/urlutil"
)

// searchInterval paces the search endpoints separately from the show
// fetcher: a single match request fans out into several API calls.
const searchInterval = time.Second

var genericSeasonRe = regexp.MustCompile(`(?i)^season\s+([0-9]+)`)

// TitleRepo searches tmdb for season titles. Find queries /search/tv and
// expands every hit into its seasons, so a perfect match arrives together
// with the sibling seasons of the same show. The repo is read-only.
//
// Titles carry aids in the T<show>S<season> form. The "Specials" season
// is skipped; generic "Season N" names are rewritten to carry the show
// name, and season 1 takes the show name verbatim (tmdb models what anidb
// calls separate animes as seasons of one show).
type TitleRepo struct {
	http   *store.HTTPStore
	api    *urlutil.URL
	logger zerolog.Logger
}

// NewTitleRepo builds the search repo for an API URL like
// https://api.themoviedb.org/3?api_key=….
func NewTitleRepo(apiURL string, logger zerolog.Logger) (*TitleRepo, error) {
	parsed, err := urlutil.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tmdb api url %q: %w", apiURL, err)
	}
	log := logger.With().Str("component", "tmdb-titles").Logger()
	return &TitleRepo{
		http: store.NewHTTPStore(store.HTTPStoreConfig{
			UserAgent:   userAgent,
			ReqInterval: searchInterval,
			ErrInterval: errInterval,
		}, log),
		api:    parsed,
		logger: log,
	}, nil
}

func (r *TitleRepo) search(ctx context.Context, value string) ([]int, error) {
	url := r.api.JoinPath("search", "tv").WithQuery("query", value)
	body, err := r.http.JSON(ctx, url.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn().Err(err).Str("query", value).Msg("tmdb search failed")
		return nil, nil
	}

	var result struct {
		Results []struct {
			ID int `json:"id"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding tmdb search response: %w", err)
	}

	ids := make([]int, 0, len(result.Results))
	for _, entry := range result.Results {
		ids = append(ids, entry.ID)
	}
	return ids, nil
}

func (r *TitleRepo) getShow(ctx context.Context, tid int) (jsonObj, error) {
	url := r.api.JoinPath("tv", strconv.Itoa(tid))
	body, err := r.http.JSON(ctx, url.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn().Err(err).Int("show", tid).Msg("tmdb show fetch failed")
		return nil, nil
	}
	var obj jsonObj
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decoding tmdb show response: %w", err)
	}
	return obj, nil
}

// isGenericName matches "Season N" names; num restricts the match to one
// specific season number, -1 accepts any.
func isGenericName(name string, num int) bool {
	m := genericSeasonRe.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return false
	}
	if num < 0 {
		return true
	}
	parsed, err := strconv.Atoi(m[1])
	return err == nil && parsed == num
}

func showSeasonTitles(show jsonObj, now time.Time) []anime.TitleEntry {
	showID, ok := jsonInt(show, "id")
	if !ok {
		return nil
	}
	showName := jsonStr(show, "name")

	var entries []anime.TitleEntry
	for _, raw := range jsonList(show, "seasons") {
		season, ok := raw.(jsonObj)
		if !ok {
			continue
		}
		name := jsonStr(season, "name")
		number, ok := jsonInt(season, "season_number")
		if !ok || strings.EqualFold(strings.TrimSpace(name), "specials") {
			continue
		}

		var value string
		switch {
		case isGenericName(name, 1):
			value = showName
		case isGenericName(name, -1):
			value = showName + " " + name
		default:
			value = name
		}

		entries = append(entries, anime.TitleEntry{
			Title: anime.Title{
				Value: value,
				Aid:   anime.TmdbSeasonID{Show: showID, Season: number}.String(),
			},
			Age: now,
		})
	}
	return entries
}

// Find implements titles.Repo; only the title value is consulted.
func (r *TitleRepo) Find(ctx context.Context, title anime.Title) ([]anime.TitleEntry, error) {
	if title.Value == "" {
		return nil, fmt.Errorf("tmdb title search: a title value is required")
	}

	ids, err := r.search(ctx, title.Value)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var entries []anime.TitleEntry
	for _, tid := range ids {
		show, err := r.getShow(ctx, tid)
		if err != nil {
			return nil, err
		}
		if show != nil {
			entries = append(entries, showSeasonTitles(show, now)...)
		}
	}
	return entries, nil
}

// Store implements titles.Repo; the search repo is read-only.
func (r *TitleRepo) Store(ctx context.Context, entry anime.TitleEntry) error {
	return fmt.Errorf("tmdb title repo is read-only")
}

// Remove implements titles.Repo; the search repo is read-only.
func (r *TitleRepo) Remove(ctx context.Context, title anime.Title) error {
	return fmt.Errorf("tmdb title repo is read-only")
}

// Purge implements titles.Repo; the search repo is read-only.
func (r *TitleRepo) Purge(ctx context.Context) error {
	return fmt.Errorf("tmdb title repo is read-only")
}
