package config

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Address() != "0.0.0.0:8080" {
		t.Errorf("Address = %q", cfg.Server.Address())
	}
	if cfg.Anidb.Titles.URL != "http://anidb.net/api/anime-titles.xml.gz" {
		t.Errorf("anidb titles url = %q", cfg.Anidb.Titles.URL)
	}
	if cfg.Anidb.Titles.CacheTime != 48*time.Hour {
		t.Errorf("anidb titles cache time = %v", cfg.Anidb.Titles.CacheTime)
	}
	if cfg.Anidb.Image.CacheTime != 100*24*time.Hour {
		t.Errorf("anidb image cache time = %v", cfg.Anidb.Image.CacheTime)
	}
	if cfg.Tmdb.API.URL != "https://api.themoviedb.org/3" {
		t.Errorf("tmdb api url = %q", cfg.Tmdb.API.URL)
	}
	if len(cfg.Tmdb.Languages) != 2 {
		t.Errorf("tmdb languages = %v", cfg.Tmdb.Languages)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("ANIDB_TITLES_CACHE_URL", "file:///var/cache/titles")
	t.Setenv("ANIDB_TITLES_CACHE_TIME", "12h")
	t.Setenv("TMDB_API_KEY", "secret")
	t.Setenv("ANIME_MAPPING_URL", "sqlite:///var/lib/mappings.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	if cfg.Anidb.Titles.CacheURL != "file:///var/cache/titles" {
		t.Errorf("cache url = %q", cfg.Anidb.Titles.CacheURL)
	}
	if cfg.Anidb.Titles.CacheTime != 12*time.Hour {
		t.Errorf("cache time = %v", cfg.Anidb.Titles.CacheTime)
	}
	if cfg.Tmdb.APIKey != "secret" {
		t.Errorf("api key = %q", cfg.Tmdb.APIKey)
	}
	if cfg.AnimeMapping.URL != "sqlite:///var/lib/mappings.db" {
		t.Errorf("mapping url = %q", cfg.AnimeMapping.URL)
	}
}

func TestLoad_InvalidLifetime(t *testing.T) {
	t.Setenv("TMDB_API_CACHE_TIME", "three days")
	if _, err := Load(""); err == nil {
		t.Error("expected an error for an unparseable cache time")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("defaults alone must not validate, cache locations are required")
	}

	cfg.Tmdb.APIKey = "secret"
	cfg.Anidb.Titles.CacheURL = "null://"
	cfg.Anidb.API.CacheURL = "null://"
	cfg.Anidb.Image.CacheURL = "null://"
	cfg.Tmdb.API.CacheURL = "null://"
	cfg.Tmdb.Image.CacheURL = "null://"
	cfg.AnimeMapping.URL = "sqlite:///tmp/m.db"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate error = %v", err)
	}
}

func TestTmdbAPIURL(t *testing.T) {
	cfg := Default()
	cfg.Tmdb.APIKey = "secret"
	if got := cfg.Tmdb.APIURL(); got != "https://api.themoviedb.org/3?api_key=secret" {
		t.Errorf("APIURL = %q", got)
	}
}
