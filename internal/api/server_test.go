package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animemeta/animemeta/internal/anime"
	"github.com/animemeta/animemeta/internal/app"
	"github.com/animemeta/animemeta/internal/config"
	"github.com/animemeta/animemeta/internal/database"
	"github.com/animemeta/animemeta/internal/mapping"
	"github.com/animemeta/animemeta/internal/scheduler"
	"github.com/animemeta/animemeta/internal/store"
	"github.com/animemeta/animemeta/internal/titles"
)

type memStore struct {
	objects map[string]store.Object
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]store.Object)}
}

func (m *memStore) Stat(ctx context.Context, name string) (store.Stat, error) {
	obj, ok := m.objects[name]
	if !ok {
		return store.Stat{}, fmt.Errorf("%w: %s", store.ErrObjectNotFound, name)
	}
	return obj.Stat, nil
}

func (m *memStore) Get(ctx context.Context, name string) (store.Object, error) {
	obj, ok := m.objects[name]
	if !ok {
		return store.Object{}, fmt.Errorf("%w: %s", store.ErrObjectNotFound, name)
	}
	return obj, nil
}

func (m *memStore) Put(ctx context.Context, name string, obj store.Object) error {
	m.objects[name] = obj
	return nil
}

type fakeAnimes struct {
	entries map[string]anime.Entry
}

func (f *fakeAnimes) Get(ctx context.Context, aid string) (anime.Entry, error) {
	entry, ok := f.entries[aid]
	if !ok {
		return anime.Entry{}, fmt.Errorf("%w: %s", anime.ErrNotFound, aid)
	}
	return entry, nil
}

type testEnv struct {
	anidbRaw    *memStore
	anidbImages *memStore
	tmdbRaw     *memStore
	tmdbImages  *memStore
	anidbAnimes *fakeAnimes
	tmdbAnimes  *fakeAnimes
	anidbTitles *titles.SQLRepo
	tmdbTitles  *titles.SQLRepo
	mappings    *mapping.SQLRepo
	sched       *scheduler.Scheduler
}

func newTestServer(t *testing.T) (*Server, *testEnv) {
	t.Helper()

	db, err := database.NewMemory()
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	tmdbDB, err := database.NewMemory()
	require.NoError(t, err)
	require.NoError(t, tmdbDB.Migrate())
	t.Cleanup(func() { tmdbDB.Close() })

	env := &testEnv{
		anidbRaw:    newMemStore(),
		anidbImages: newMemStore(),
		tmdbRaw:     newMemStore(),
		tmdbImages:  newMemStore(),
		anidbAnimes: &fakeAnimes{entries: make(map[string]anime.Entry)},
		tmdbAnimes:  &fakeAnimes{entries: make(map[string]anime.Entry)},
		anidbTitles: titles.NewSQLRepo(db.Conn()),
		tmdbTitles:  titles.NewSQLRepo(tmdbDB.Conn()),
		mappings:    mapping.NewSQLRepo(db.Conn()),
	}

	logger := zerolog.Nop()
	a := &app.App{
		AnidbRaw:    env.anidbRaw,
		AnidbAnimes: env.anidbAnimes,
		AnidbImages: env.anidbImages,
		TmdbRaw:     env.tmdbRaw,
		TmdbAnimes:  env.tmdbAnimes,
		TmdbImages:  env.tmdbImages,
		TmdbTitles:  env.tmdbTitles,
		Mappings:    env.mappings,
		Matcher:     mapping.NewTitleMatcher(env.anidbTitles, env.tmdbTitles, env.mappings, logger),
	}

	env.sched, err = scheduler.New(logger)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Server.BaseURL = "http://api.test"
	return NewServer(a, env.sched, cfg, logger), env
}

func doRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAnime_Anidb(t *testing.T) {
	s, env := newTestServer(t)
	env.anidbAnimes.entries["42"] = anime.Entry{Anime: anime.Anime{
		ID:        "A42",
		UniqueIDs: map[string]string{"anidb": "42"},
		Titles:    []anime.Title{{Value: "Koe no Katachi", Lang: "x-jat", Type: anime.TitleMain}},
		Images:    []anime.Image{{Source: "anidb", Name: "225633.jpg", Type: anime.ImagePoster}},
	}}

	rec := doRequest(s, http.MethodGet, "/anime/A42")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "A42", body["id"])

	links := body["_links"].(map[string]any)
	animeHref := links["anime"].(map[string]any)["href"]
	assert.Equal(t, "http://api.test/anime/A42", animeHref)

	images := body["images"].([]any)
	require.Len(t, images, 1)
	imageLinks := images[0].(map[string]any)["_links"].(map[string]any)
	assert.Equal(t, "http://api.test/anidb/images/225633.jpg",
		imageLinks["image"].(map[string]any)["href"])
}

func TestGetAnime_TmdbSeasonUsesShow(t *testing.T) {
	s, env := newTestServer(t)
	env.tmdbAnimes.entries["1234"] = anime.Entry{Anime: anime.Anime{
		ID:        "T1234",
		UniqueIDs: map[string]string{"tmdb": "1234"},
	}}

	for _, target := range []string{"/anime/T1234", "/anime/T1234S2"} {
		rec := doRequest(s, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "T1234", decodeJSON(t, rec)["id"])
	}
}

func TestGetAnime_Combined(t *testing.T) {
	s, env := newTestServer(t)
	env.anidbAnimes.entries["42"] = anime.Entry{Anime: anime.Anime{
		ID:        "A42",
		UniqueIDs: map[string]string{"anidb": "42"},
		Seasons:   []anime.Season{{Number: 1, Episodes: []anime.Episode{{Number: 1}}}},
	}}
	env.tmdbAnimes.entries["1234"] = anime.Entry{Anime: anime.Anime{
		ID:        "T1234",
		UniqueIDs: map[string]string{"tmdb": "1234"},
		Genres:    []string{"Animation"},
		Seasons:   []anime.Season{{Number: 1}},
	}}

	rec := doRequest(s, http.MethodGet, "/anime/A42-T1234S1")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "A42-T1234S1", body["id"])
	uniqueids := body["uniqueids"].(map[string]any)
	assert.Equal(t, "42", uniqueids["anidb"])
	assert.Equal(t, "1234", uniqueids["tmdb"])
	assert.Equal(t, []any{"Animation"}, body["genres"])
}

func TestGetAnime_Errors(t *testing.T) {
	s, env := newTestServer(t)
	env.anidbAnimes.entries["42"] = anime.Entry{Anime: anime.Anime{ID: "A42"}}

	for _, target := range []string{
		"/anime/bogus",      // unparseable id
		"/anime/A7",         // unknown anidb id
		"/anime/T9",         // unknown tmdb id
		"/anime/A42-T9S1",   // mapping with unknown tmdb side
		"/anime/A9-T1234S1", // mapping with unknown anidb side
	} {
		rec := doRequest(s, http.MethodGet, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestFindMatch_Validation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/match?title=")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodGet, "/match?title=foo&db=tmdb")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFindMatch_PerfectMatch(t *testing.T) {
	s, env := newTestServer(t)
	ctx := context.Background()
	age := time.Now()

	for _, title := range []anime.Title{
		{Aid: "42", Value: "Koe no Katachi", Lang: "x-jat", Type: anime.TitleMain},
		{Aid: "42", Value: "A Silent Voice", Lang: "en", Type: anime.TitleOfficial},
	} {
		require.NoError(t, env.anidbTitles.Store(ctx, anime.TitleEntry{Title: title, Age: age}))
	}
	require.NoError(t, env.tmdbTitles.Store(ctx, anime.TitleEntry{
		Title: anime.Title{Aid: "T7S1", Value: "A Silent Voice", Lang: "en", Type: anime.TitleMain},
		Age:   age,
	}))

	rec := doRequest(s, http.MethodGet, "/match?title=A+Silent+Voice")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	items := body["items"].([]any)
	require.Len(t, items, 1)

	item := items[0].(map[string]any)
	assert.Equal(t, "A42-T7S1", item["anime_id"])
	assert.Equal(t, "A Silent Voice", item["anidb"].(map[string]any)["title"].(map[string]any)["title"])

	links := item["_links"].(map[string]any)
	remember := links["remember"].(map[string]any)
	assert.Equal(t, "http://api.test/match/A42-T7S1", remember["href"])
	assert.Equal(t, "PUT", remember["method"])
	assert.NotContains(t, links, "forget")
}

func TestMatchLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	// nothing stored yet
	rec := doRequest(s, http.MethodGet, "/match/A42-T7S1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// remember; a second put is a no-op
	for i := 0; i < 2; i++ {
		rec = doRequest(s, http.MethodPut, "/match/A42-T7S1")
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/match/A42-T7S1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "A42-T7S1", body["anime_id"])
	uniqueids := body["uniqueids"].(map[string]any)
	assert.Equal(t, "A42", uniqueids["anidb"])
	assert.Equal(t, "7", uniqueids["tmdb"])
	assert.Equal(t, "1", uniqueids["tmdb_season"])
	forget := body["_links"].(map[string]any)["forget"].(map[string]any)
	assert.Equal(t, "DELETE", forget["method"])

	// forget; deleting again still succeeds
	for i := 0; i < 2; i++ {
		rec = doRequest(s, http.MethodDelete, "/match/A42-T7S1")
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/match/A42-T7S1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMatch_InvalidID(t *testing.T) {
	s, _ := newTestServer(t)
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := doRequest(s, method, "/match/A42")
		assert.Equal(t, http.StatusNotFound, rec.Code, method)
	}
}

func TestGetAnidbShow(t *testing.T) {
	s, env := newTestServer(t)
	obj := store.NewObject("application/xml", []byte("<anime id=\"42\"/>"))
	env.anidbRaw.objects["42.xml"] = obj

	rec := doRequest(s, http.MethodGet, "/anidb/shows/42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<anime id=\"42\"/>", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/xml")
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))

	rec = doRequest(s, http.MethodGet, "/anidb/shows/7")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTmdbShow(t *testing.T) {
	s, env := newTestServer(t)
	env.tmdbRaw.objects["en/1234.json"] = store.NewObject("text/json", []byte(`{"id":1234}`))

	rec := doRequest(s, http.MethodGet, "/tmdb/shows/en/1234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"id":1234}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	rec = doRequest(s, http.MethodGet, "/tmdb/shows/de/1234")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImages(t *testing.T) {
	s, env := newTestServer(t)
	env.anidbImages.objects["poster.jpg"] = store.NewObject("image/jpeg", []byte("JPEGBYTES"))
	env.tmdbImages.objects["backdrop.jpg"] = store.NewObject("image/jpeg", []byte("MOREBYTES"))

	rec := doRequest(s, http.MethodGet, "/anidb/images/poster.jpg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "JPEGBYTES", rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec = doRequest(s, http.MethodHead, "/anidb/images/poster.jpg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.String())

	rec = doRequest(s, http.MethodGet, "/tmdb/images/backdrop.jpg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MOREBYTES", rec.Body.String())

	rec = doRequest(s, http.MethodHead, "/tmdb/images/missing.jpg")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTasks(t *testing.T) {
	s, env := newTestServer(t)

	ran := make(chan struct{}, 1)
	require.NoError(t, env.sched.RegisterTask(scheduler.TaskConfig{
		ID:   "titleindex-refresh",
		Name: "Title Index Refresh",
		Cron: "30 4 * * *",
		Func: func(ctx context.Context) error {
			ran <- struct{}{}
			return nil
		},
	}))

	rec := doRequest(s, http.MethodGet, "/tasks")
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "titleindex-refresh", tasks[0]["id"])
	assert.Equal(t, "30 4 * * *", tasks[0]["cron"])

	rec = doRequest(s, http.MethodGet, "/tasks/titleindex-refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "titleindex-refresh", decodeJSON(t, rec)["id"])

	rec = doRequest(s, http.MethodGet, "/tasks/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(s, http.MethodPost, "/tasks/unknown/run")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/tasks/titleindex-refresh/run")
	require.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run after the trigger")
	}
}

