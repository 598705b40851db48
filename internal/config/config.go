package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Anidb        AnidbConfig        `mapstructure:"anidb"`
	Tmdb         TmdbConfig         `mapstructure:"tmdb"`
	AnimeMapping AnimeMappingConfig `mapstructure:"anime_mapping"`
}

// ServerConfig holds HTTP server configuration. BaseURL is the public
// URL the service is reachable under; response links are built from it,
// falling back to the request host when empty.
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// SourceConfig locates one upstream plus the cache in front of it. The
// lifetime is given in the grammar of ParseLifetime ("2d 12h") or as a
// plain second count.
type SourceConfig struct {
	URL          string `mapstructure:"url"`
	CacheURL     string `mapstructure:"cache_url"`
	CacheTimeRaw string `mapstructure:"cache_time"`

	CacheTime time.Duration `mapstructure:"-"`
}

// AnidbConfig holds the anidb upstream locations.
type AnidbConfig struct {
	Titles SourceConfig `mapstructure:"titles"`
	API    SourceConfig `mapstructure:"api"`
	Image  SourceConfig `mapstructure:"image"`
}

// TmdbConfig holds the tmdb upstream locations. The API key is appended
// to the API URL as the api_key query parameter.
type TmdbConfig struct {
	API       SourceConfig `mapstructure:"api"`
	Image     SourceConfig `mapstructure:"image"`
	APIKey    string       `mapstructure:"api_key"`
	Languages []string     `mapstructure:"languages"`
}

// AnimeMappingConfig locates the confirmed-mapping repository.
type AnimeMappingConfig struct {
	URL string `mapstructure:"url"`
}

// Default returns a Config with default values.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	_ = v.Unmarshal(cfg)
	_ = cfg.parseLifetimes()
	return cfg
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults. Environment
// names follow the nesting with underscores: ANIDB_TITLES_CACHE_URL,
// TMDB_API_KEY, ANIME_MAPPING_URL and so on.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.animemeta")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.parseLifetimes(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseLifetimes() error {
	for _, source := range []*SourceConfig{
		&c.Anidb.Titles, &c.Anidb.API, &c.Anidb.Image,
		&c.Tmdb.API, &c.Tmdb.Image,
	} {
		parsed, err := ParseLifetime(source.CacheTimeRaw)
		if err != nil {
			return err
		}
		source.CacheTime = parsed
	}
	return nil
}

// Validate checks the settings no default exists for.
func (c *Config) Validate() error {
	if c.Tmdb.APIKey == "" {
		return fmt.Errorf("the TMDB_API_KEY variable must not be empty")
	}
	required := map[string]string{
		"ANIDB_TITLES_CACHE_URL": c.Anidb.Titles.CacheURL,
		"ANIDB_API_CACHE_URL":    c.Anidb.API.CacheURL,
		"ANIDB_IMAGE_CACHE_URL":  c.Anidb.Image.CacheURL,
		"TMDB_API_CACHE_URL":     c.Tmdb.API.CacheURL,
		"TMDB_IMAGE_CACHE_URL":   c.Tmdb.Image.CacheURL,
		"ANIME_MAPPING_URL":      c.AnimeMapping.URL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("the %s variable must not be empty", name)
		}
	}
	return nil
}

// setDefaults sets default values in viper. Every key needs a default so
// environment-only values survive the unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	// Anidb defaults
	v.SetDefault("anidb.titles.url", "http://anidb.net/api/anime-titles.xml.gz")
	v.SetDefault("anidb.titles.cache_url", "")
	v.SetDefault("anidb.titles.cache_time", "2d")
	v.SetDefault("anidb.api.url", "http://api.anidb.net:9001/httpapi")
	v.SetDefault("anidb.api.cache_url", "")
	v.SetDefault("anidb.api.cache_time", "2d")
	v.SetDefault("anidb.image.url", "https://cdn-eu.anidb.net/images/main")
	v.SetDefault("anidb.image.cache_url", "")
	v.SetDefault("anidb.image.cache_time", "100d")

	// Tmdb defaults
	v.SetDefault("tmdb.api.url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.api.cache_url", "")
	v.SetDefault("tmdb.api.cache_time", "1d")
	v.SetDefault("tmdb.image.url", "")
	v.SetDefault("tmdb.image.cache_url", "")
	v.SetDefault("tmdb.image.cache_time", "100d")
	v.SetDefault("tmdb.api_key", EmbeddedTMDBKey)
	v.SetDefault("tmdb.languages", []string{"de", "en"})

	// Mapping defaults
	v.SetDefault("anime_mapping.url", "")
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// APIURL returns the tmdb API URL with the api_key query parameter set.
func (c *TmdbConfig) APIURL() string {
	url := c.API.URL
	if c.APIKey == "" {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "api_key=" + c.APIKey
}
