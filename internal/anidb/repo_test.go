package anidb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/animemeta/animemeta/internal/anime"
	"github.com/animemeta/animemeta/internal/store"
	"github.com/animemeta/animemeta/internal/titles"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string]store.Object
	gets    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]store.Object)}
}

func (f *fakeStore) put(name string, obj store.Object) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[name] = obj
}

func (f *fakeStore) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *fakeStore) Stat(ctx context.Context, name string) (store.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[name]
	if !ok {
		return store.Stat{}, fmt.Errorf("%w: %s", store.ErrObjectNotFound, name)
	}
	return obj.Stat, nil
}

func (f *fakeStore) Get(ctx context.Context, name string) (store.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	obj, ok := f.objects[name]
	if !ok {
		return store.Object{}, fmt.Errorf("%w: %s", store.ErrObjectNotFound, name)
	}
	return obj, nil
}

func (f *fakeStore) Put(ctx context.Context, name string, obj store.Object) error {
	f.put(name, obj)
	return nil
}

// fakeTitles is an in-memory titles.Repo for repo tests.
type fakeTitles struct {
	entries []anime.TitleEntry
}

func (f *fakeTitles) Find(ctx context.Context, query anime.Title) ([]anime.TitleEntry, error) {
	var out []anime.TitleEntry
	for _, entry := range f.entries {
		t := entry.Title
		if query.Value != "" && t.Value != query.Value {
			continue
		}
		if query.Aid != "" && t.Aid != query.Aid {
			continue
		}
		if query.Lang != "" && t.Lang != query.Lang {
			continue
		}
		if query.Type != "" && t.Type != query.Type {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (f *fakeTitles) Store(ctx context.Context, entry anime.TitleEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeTitles) Remove(ctx context.Context, title anime.Title) error {
	var kept []anime.TitleEntry
	for _, entry := range f.entries {
		if entry.Title.Value != title.Value {
			kept = append(kept, entry)
		}
	}
	f.entries = kept
	return nil
}

func (f *fakeTitles) Purge(ctx context.Context) error {
	f.entries = nil
	return nil
}

func titlesObject(data string, ttl time.Duration) store.Object {
	obj := store.NewObject("text/xml", []byte(data))
	obj.TTL = ttl
	obj.LastFetched = time.Now()
	obj.LastModified = time.Now().Add(-time.Hour)
	return obj
}

func TestTitleIndex_LoadsAndCaches(t *testing.T) {
	ctx := context.Background()
	dump := newFakeStore()
	dump.put(titlesObjectName, titlesObject(titlesFixture, store.NeverExpires))

	index, err := NewTitleIndex(dump, &fakeTitles{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTitleIndex error = %v", err)
	}
	defer index.Close()

	rows, err := index.Find(ctx, anime.Title{Aid: "1"})
	if err != nil {
		t.Fatalf("Find error = %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("rows = %d, want 3", len(rows))
	}

	// a never-expiring dump loads exactly once
	if _, err := index.Find(ctx, anime.Title{Aid: "17"}); err != nil {
		t.Fatalf("Find error = %v", err)
	}
	if dump.getCount() != 1 {
		t.Errorf("dump reads = %d, want 1", dump.getCount())
	}
}

func TestTitleIndex_RefreshesWhenExpired(t *testing.T) {
	ctx := context.Background()
	dump := newFakeStore()
	dump.put(titlesObjectName, titlesObject(titlesFixture, 30*time.Millisecond))

	index, err := NewTitleIndex(dump, &fakeTitles{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTitleIndex error = %v", err)
	}
	defer index.Close()

	if _, err := index.Find(ctx, anime.Title{Aid: "1"}); err != nil {
		t.Fatalf("Find error = %v", err)
	}

	// swap the dump content; a fresh read within the window still sees
	// the old index
	updated := strings.Replace(titlesFixture, "Trigun", "Trigun Remastered", 1)
	dump.put(titlesObjectName, titlesObject(updated, 30*time.Millisecond))

	rows, _ := index.Find(ctx, anime.Title{Aid: "17"})
	if len(rows) != 1 || rows[0].Title.Value != "Trigun" {
		t.Fatalf("rows before expiry = %+v, want the original title", rows)
	}

	time.Sleep(50 * time.Millisecond)

	rows, err = index.Find(ctx, anime.Title{Aid: "17"})
	if err != nil {
		t.Fatalf("Find after expiry error = %v", err)
	}
	if len(rows) != 1 || rows[0].Title.Value != "Trigun Remastered" {
		t.Errorf("rows after expiry = %+v, want the rebuilt index", rows)
	}
	if dump.getCount() != 2 {
		t.Errorf("dump reads = %d, want 2", dump.getCount())
	}
}

func TestTitleIndex_ExtrasSurviveRebuild(t *testing.T) {
	ctx := context.Background()
	dump := newFakeStore()
	dump.put(titlesObjectName, titlesObject(titlesFixture, 30*time.Millisecond))

	index, err := NewTitleIndex(dump, &fakeTitles{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTitleIndex error = %v", err)
	}
	defer index.Close()

	extra := anime.Title{Aid: "A1", Type: anime.TitleExtra, Lang: "en", Value: "Fan Name"}
	if err := index.Store(ctx, anime.TitleEntry{Title: extra, Age: time.Now()}); err != nil {
		t.Fatalf("Store error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	rows, err := index.Find(ctx, anime.Title{Aid: "A1"})
	if err != nil {
		t.Fatalf("Find error = %v", err)
	}
	if len(rows) != 1 || rows[0].Title.Value != "Fan Name" {
		t.Errorf("rows = %+v, want the stored extra title after a rebuild", rows)
	}
}

func TestAnimeRepo_TitleGate(t *testing.T) {
	ctx := context.Background()
	objects := newFakeStore()
	repo := NewAnimeRepo(objects, &fakeTitles{entries: []anime.TitleEntry{
		{Title: anime.Title{Aid: "7", Type: anime.TitleExtra, Value: "Only Extra"}},
	}}, zerolog.Nop())

	// unknown aid
	if _, err := repo.Get(ctx, "99"); !errors.Is(err, anime.ErrNotFound) {
		t.Errorf("Get(99) error = %v, want ErrNotFound", err)
	}

	// extra-only rows do not count as existence
	if _, err := repo.Get(ctx, "7"); !errors.Is(err, anime.ErrNotFound) {
		t.Errorf("Get(7) error = %v, want ErrNotFound", err)
	}

	if objects.getCount() != 0 {
		t.Errorf("object reads = %d, want 0 (the gate must run first)", objects.getCount())
	}
}

func TestAnimeRepo_Get(t *testing.T) {
	ctx := context.Background()
	objects := newFakeStore()
	obj := store.NewObject("text/xml; charset=utf-8", []byte(animeFixture))
	obj.LastModified = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	objects.put("42.xml", obj)

	titleRepo := &fakeTitles{entries: []anime.TitleEntry{
		{Title: anime.Title{Aid: "42", Type: anime.TitleMain, Lang: "x-jat", Value: "Kidou Senshi Gundam"}},
		{Title: anime.Title{Aid: "A42", Type: anime.TitleExtra, Lang: "en", Value: "Fan Name"}},
	}}
	repo := NewAnimeRepo(objects, titleRepo, zerolog.Nop())

	entry, err := repo.Get(ctx, "42")
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if entry.Anime.ID != "A42" {
		t.Errorf("ID = %q", entry.Anime.ID)
	}
	if !entry.Age.Equal(obj.LastModified) {
		t.Errorf("Age = %v, want the object's last-modified", entry.Age)
	}

	// the stored extra title is appended after parsing
	last := entry.Anime.Titles[len(entry.Anime.Titles)-1]
	if last.Value != "Fan Name" || last.Type != anime.TitleExtra {
		t.Errorf("last title = %+v, want the extra title", last)
	}
}

func TestAnimeRepo_RequiresXMLContentType(t *testing.T) {
	ctx := context.Background()
	objects := newFakeStore()
	objects.put("42.xml", store.NewObject("text/html", []byte(animeFixture)))

	repo := NewAnimeRepo(objects, &fakeTitles{entries: []anime.TitleEntry{
		{Title: anime.Title{Aid: "42", Type: anime.TitleMain, Value: "X"}},
	}}, zerolog.Nop())

	if _, err := repo.Get(ctx, "42"); err == nil {
		t.Error("expected an error for a non-xml content type")
	}
}

var _ titles.Repo = (*fakeTitles)(nil)
