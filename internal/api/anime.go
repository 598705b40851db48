package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/animemeta/animemeta/internal/anime"
)

// getAnime serves the unified document for any identifier shape: a
// single-catalog id returns that catalog's record, a mapping id merges
// the anidb record with the mapped tmdb season.
func (s *Server) getAnime(c echo.Context) error {
	raw := c.Param("id")

	id, err := anime.ParseAnimeID(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "invalid anime id")
	}

	ctx := c.Request().Context()
	var result anime.Anime

	switch id := id.(type) {
	case anime.AnidbID:
		entry, err := s.app.AnidbAnimes.Get(ctx, strconv.Itoa(int(id)))
		if err != nil {
			return animeError(err)
		}
		result = entry.Anime
	case anime.TmdbID:
		entry, err := s.app.TmdbAnimes.Get(ctx, strconv.Itoa(int(id)))
		if err != nil {
			return animeError(err)
		}
		result = entry.Anime
	case anime.TmdbSeasonID:
		entry, err := s.app.TmdbAnimes.Get(ctx, strconv.Itoa(id.Show))
		if err != nil {
			return animeError(err)
		}
		result = entry.Anime
	case anime.MappingID:
		anidbEntry, err := s.app.AnidbAnimes.Get(ctx, strconv.Itoa(int(id.Anidb)))
		if err != nil {
			return animeError(err)
		}
		tmdbEntry, err := s.app.TmdbAnimes.Get(ctx, strconv.Itoa(id.Tmdb.Show))
		if err != nil {
			return animeError(err)
		}
		result, err = anime.Combine(anidbEntry.Anime, tmdbEntry.Anime, id.Tmdb.Season)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
	}

	view := newAnimeView(result, s.baseURL(c))
	view.Links["anime"] = animeLink(s.baseURL(c), raw, "GET")
	return c.JSON(http.StatusOK, view)
}

// animeError maps a repository error onto the HTTP status.
func animeError(err error) error {
	if errors.Is(err, anime.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}
