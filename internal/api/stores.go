package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/animemeta/animemeta/internal/store"
)

// serveObject writes a cached object with its metadata headers. An
// explicit content type overrides the stored one.
func serveObject(c echo.Context, obj store.Object, contentType string) error {
	if contentType == "" {
		contentType = obj.ContentType
	}
	c.Response().Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	return c.Blob(http.StatusOK, contentType, obj.Data)
}

// serveStat answers a HEAD request from the object's metadata alone.
func serveStat(c echo.Context, stat store.Stat) error {
	header := c.Response().Header()
	header.Set("Last-Modified", stat.LastModified.UTC().Format(http.TimeFormat))
	header.Set("Content-Length", strconv.FormatInt(stat.Size, 10))
	header.Set(echo.HeaderContentType, stat.ContentType)
	return c.NoContent(http.StatusOK)
}

// storeError maps store failures onto HTTP statuses.
func storeError(err error) error {
	if errors.Is(err, store.ErrObjectNotFound) {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	return err
}

// getAnidbShow serves the cached upstream XML document unchanged.
func (s *Server) getAnidbShow(c echo.Context) error {
	obj, err := s.app.AnidbRaw.Get(c.Request().Context(), c.Param("aid")+".xml")
	if err != nil {
		return storeError(err)
	}
	return serveObject(c, obj, "text/xml; charset=utf-8")
}

func (s *Server) getAnidbImage(c echo.Context) error {
	obj, err := s.app.AnidbImages.Get(c.Request().Context(), c.Param("name"))
	if err != nil {
		return storeError(err)
	}
	return serveObject(c, obj, "")
}

func (s *Server) headAnidbImage(c echo.Context) error {
	stat, err := s.app.AnidbImages.Stat(c.Request().Context(), c.Param("name"))
	if err != nil {
		return storeError(err)
	}
	return serveStat(c, stat)
}

// getTmdbShow serves the composed tmdb document for one language.
func (s *Server) getTmdbShow(c echo.Context) error {
	name := c.Param("lang") + "/" + c.Param("sid") + ".json"
	obj, err := s.app.TmdbRaw.Get(c.Request().Context(), name)
	if err != nil {
		return storeError(err)
	}
	return serveObject(c, obj, echo.MIMEApplicationJSON)
}

func (s *Server) getTmdbImage(c echo.Context) error {
	obj, err := s.app.TmdbImages.Get(c.Request().Context(), c.Param("name"))
	if err != nil {
		return storeError(err)
	}
	return serveObject(c, obj, "")
}

func (s *Server) headTmdbImage(c echo.Context) error {
	stat, err := s.app.TmdbImages.Stat(c.Request().Context(), c.Param("name"))
	if err != nil {
		return storeError(err)
	}
	return serveStat(c, stat)
}
