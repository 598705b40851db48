package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/animemeta/animemeta/internal/anime"
	"github.com/animemeta/animemeta/internal/mapping"
)

// findMatch searches both catalogs for the given title and returns the
// suggested or confirmed pairings.
func (s *Server) findMatch(c echo.Context) error {
	title := c.QueryParam("title")
	if title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title must not be empty")
	}
	db := c.QueryParam("db")
	if db != "" && db != "anidb" {
		// TODO: matching seeded from a tmdb title needs a tmdb-side
		// candidate search first
		return echo.NewHTTPError(http.StatusBadRequest, "can only match against the anidb database")
	}

	results, err := s.app.Matcher.Match(c.Request().Context(), anime.Title{Value: title})
	if err != nil {
		return err
	}

	base := s.baseURL(c)
	items := make([]TitleMappingView, 0, len(results))
	for _, result := range results {
		view, err := newTitleMappingView(result, base)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping match result with malformed ids")
			continue
		}
		items = append(items, view)
	}
	return c.JSON(http.StatusOK, CollectionView[TitleMappingView]{Items: items, Links: Links{}})
}

// matchID parses the strict mapping id form from the path.
func matchID(c echo.Context) (anime.MappingID, error) {
	id, err := anime.ParseMappingID(c.Param("id"))
	if err != nil {
		return anime.MappingID{}, echo.NewHTTPError(http.StatusNotFound, "invalid anime id")
	}
	return id, nil
}

func mappingQuery(id anime.MappingID) mapping.AnimeMapping {
	return mapping.AnimeMapping{
		Anidb: strconv.Itoa(int(id.Anidb)),
		Tmdb:  id.Tmdb.String(),
	}
}

// getMatch returns a confirmed pairing, 404 when it is not stored.
func (s *Server) getMatch(c echo.Context) error {
	id, err := matchID(c)
	if err != nil {
		return err
	}

	match, err := s.app.Mappings.Load(c.Request().Context(), mappingQuery(id))
	if err != nil {
		return err
	}
	if match == nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, newAnimeMappingView(id, s.baseURL(c)))
}

// storeMatch confirms a pairing. Storing an already confirmed pair is a
// no-op so repeated puts do not rewrite the backing document.
func (s *Server) storeMatch(c echo.Context) error {
	id, err := matchID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	query := mappingQuery(id)
	existing, err := s.app.Mappings.Load(ctx, query)
	if err != nil {
		return err
	}
	if existing == nil {
		if err := s.app.Mappings.Store(ctx, []mapping.AnimeMapping{query}, true); err != nil {
			return err
		}
	}
	return c.NoContent(http.StatusOK)
}

// deleteMatch forgets a pairing; deleting an absent pair succeeds.
func (s *Server) deleteMatch(c echo.Context) error {
	id, err := matchID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	query := mappingQuery(id)
	existing, err := s.app.Mappings.Load(ctx, query)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := s.app.Mappings.Remove(ctx, query); err != nil {
			return err
		}
	}
	return c.NoContent(http.StatusOK)
}
